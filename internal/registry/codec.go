package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/model"
)

// envelope 票据的后端存储信封
// Encoded 为真时 Body 是加密后的密文，由编码层负责还原
type envelope struct {
	Kind         string        `json:"kind"`
	Encoded      bool          `json:"encoded,omitempty"`
	Body         []byte        `json:"body"`
	CreationTime time.Time     `json:"creation_time"`
	TTL          time.Duration `json:"ttl,omitempty"`
}

// marshalStored 将票据打包为存储信封
func marshalStored(t model.Ticket) ([]byte, error) {
	env := envelope{
		Kind:         t.Kind(),
		CreationTime: t.GetCreationTime(),
		TTL:          ticketTTL(t),
	}
	if et, ok := t.(*encodedTicket); ok {
		env.Encoded = true
		env.Body = et.body
	} else {
		_, body, err := model.MarshalTicket(t)
		if err != nil {
			return nil, err
		}
		env.Body = body
	}
	return json.Marshal(env)
}

// unmarshalStored 从存储信封还原票据
func unmarshalStored(id string, data []byte) (model.Ticket, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析票据信封失败: %w", err)
	}
	if env.Encoded {
		return &encodedTicket{
			id:           id,
			kind:         env.Kind,
			body:         env.Body,
			creationTime: env.CreationTime,
			ttl:          env.TTL,
		}, nil
	}
	return model.UnmarshalTicket(env.Kind, env.Body)
}
