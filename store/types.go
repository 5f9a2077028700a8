package store

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type storeable interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBToken is the persisted auth token.
type DBToken struct {
	Token   string `msgpack:"token"`
	SavedAt int64  `msgpack:"savedAt"`
}

func (t *DBToken) MarshalBinary() (data []byte, err error) {
	type alias DBToken
	return msgpack.Marshal((*alias)(t))
}

func (t *DBToken) UnmarshalBinary(data []byte) error {
	type alias DBToken
	return msgpack.Unmarshal(data, (*alias)(t))
}

// DBUser is the signed-in user's identity.
type DBUser struct {
	ID          string `msgpack:"id"`
	UserName    string `msgpack:"userName"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

var (
	_ storeable = (*DBToken)(nil)
	_ storeable = (*DBUser)(nil)
)
