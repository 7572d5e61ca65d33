package room

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Reason classifies why a connection was refused.
type Reason string

// Rejection reasons, in the order Authenticate checks them.
const (
	ReasonMissingIdentity    Reason = "missing_identity"
	ReasonSecretsUnavailable Reason = "secrets_unavailable"
	ReasonSecretsMalformed   Reason = "secrets_malformed"
	ReasonUnknownIdentity    Reason = "unknown_identity"
	ReasonSecretMismatch     Reason = "secret_mismatch"
	ReasonAlreadyOnline      Reason = "already_online"
)

// Rejection is returned when a connection attempt is refused. Message is
// the text shown to the client before the socket closes.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("connection rejected (%s): %s", r.Reason, r.Message)
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// credentials is the parsed identity to secret table. A table that is
// absent or unparsable is kept as a failure reason so every lookup fails
// closed with the same diagnostic.
type credentials struct {
	table map[string]string
	fault *Rejection
}

func parseCredentials(raw string) credentials {
	if strings.TrimSpace(raw) == "" {
		return credentials{fault: reject(ReasonSecretsUnavailable, "系统严重错误: 管理员未配置 USER_SECRETS 环境变量")}
	}
	var table map[string]string
	if err := json.Unmarshal([]byte(raw), &table); err != nil || table == nil {
		return credentials{fault: reject(ReasonSecretsMalformed, "服务器配置错误: USER_SECRETS 格式无效")}
	}
	return credentials{table: table}
}

// check verifies identity and secret against the table. It does not know
// who is online; the room adds that check.
func (c credentials) check(identity, secret string) *Rejection {
	if identity == "" {
		return reject(ReasonMissingIdentity, "必须提供 'name' 参数")
	}
	if c.fault != nil {
		return c.fault
	}
	stored, ok := c.table[identity]
	if !ok {
		return reject(ReasonUnknownIdentity, "用户 '%s' 不在名单中", identity)
	}
	if !secretMatches(stored, secret) {
		return reject(ReasonSecretMismatch, "密码错误")
	}
	return nil
}

// secretMatches compares a presented secret with a table entry. Entries
// that look like bcrypt hashes are verified as such.
func secretMatches(stored, presented string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
