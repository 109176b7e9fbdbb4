package actor

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindWeb      Kind = "web"
	KindTelegram Kind = "tg"
	KindSystem   Kind = "sys"
)

// Actor identifies who performed or was affected by a moderation event.
// Exactly one identity is ever populated; the only way to build one is
// through the three factory functions below.
type Actor struct {
	WebUserID      string `json:"web_user_id,omitempty"`
	DisplayEmail   string `json:"display_email,omitempty"`
	TelegramUserID int64  `json:"telegram_user_id,omitempty"`
	SystemName     string `json:"system_name,omitempty"`
}

func FromWebUser(id string, displayEmail ...string) Actor {
	if id == "" {
		panic("actor: empty web user id")
	}
	a := Actor{WebUserID: id}
	if len(displayEmail) > 0 {
		a.DisplayEmail = displayEmail[0]
	}
	return a
}

func FromTelegramUser(id int64) Actor {
	if id == 0 {
		panic("actor: zero telegram user id")
	}
	return Actor{TelegramUserID: id}
}

func FromSystem(name string) Actor {
	if name == "" {
		panic("actor: empty system name")
	}
	return Actor{SystemName: name}
}

func (a Actor) Kind() Kind {
	switch {
	case a.WebUserID != "":
		return KindWeb
	case a.TelegramUserID != 0:
		return KindTelegram
	case a.SystemName != "":
		return KindSystem
	}
	panic("actor: no identity set")
}

// Tag renders the stable log form: web:<id>, tg:<id> or sys:<name>.
func (a Actor) Tag() string {
	switch a.Kind() {
	case KindWeb:
		return string(KindWeb) + ":" + a.WebUserID
	case KindTelegram:
		return string(KindTelegram) + ":" + strconv.FormatInt(a.TelegramUserID, 10)
	default:
		return string(KindSystem) + ":" + a.SystemName
	}
}

func (a Actor) String() string {
	return a.Tag()
}

// Equal compares by identity, ignoring the display email.
func (a Actor) Equal(other Actor) bool {
	return a.WebUserID == other.WebUserID &&
		a.TelegramUserID == other.TelegramUserID &&
		a.SystemName == other.SystemName
}

// ParseTag is the inverse of Tag.
func ParseTag(tag string) (Actor, error) {
	kind, value, ok := strings.Cut(tag, ":")
	if !ok || value == "" {
		return Actor{}, fmt.Errorf("malformed actor tag %q", tag)
	}
	switch Kind(kind) {
	case KindWeb:
		return FromWebUser(value), nil
	case KindTelegram:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id == 0 {
			return Actor{}, fmt.Errorf("malformed telegram actor tag %q", tag)
		}
		return FromTelegramUser(id), nil
	case KindSystem:
		return FromSystem(value), nil
	}
	return Actor{}, fmt.Errorf("unknown actor kind %q", kind)
}

func (a Actor) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Actor) Scan(v interface{}) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), a)
	case []byte:
		return json.Unmarshal(data, a)
	default:
		return fmt.Errorf("cannot scan type %T into Actor", v)
	}
}
