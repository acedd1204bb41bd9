package phone

import (
	"errors"
	"strings"
)

var ErrInvalid = errors.New("telefone inválido")

const (
	minDigits = 8
	maxDigits = 15
)

// Normalize converte um telefone em formato livre para a forma canônica
// +<ddi><número>. Entradas sem prefixo internacional recebem o país padrão;
// o escape internacional "00" vira "+". A função é idempotente: normalizar
// um valor já normalizado devolve o mesmo valor.
func Normalize(raw, defaultCountryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalid
	}

	hasPlus := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if !hasPlus {
		if strings.HasPrefix(digits, "00") {
			digits = strings.TrimPrefix(digits, "00")
		} else if defaultCountryCode != "" && !strings.HasPrefix(digits, defaultCountryCode) {
			digits = defaultCountryCode + digits
		}
	}

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", ErrInvalid
	}

	return "+" + digits, nil
}

// Equal compara dois telefones normalizando ambos os lados. Nunca assume
// que um dos lados já está normalizado.
func Equal(a, b, defaultCountryCode string) bool {
	na, errA := Normalize(a, defaultCountryCode)
	nb, errB := Normalize(b, defaultCountryCode)
	if errA != nil || errB != nil {
		return false
	}
	return na == nb
}

// IsGroupJID reporta se o JID pertence a um grupo. Grupos não têm telefone:
// a parte local é um identificador interno, não um número discável.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// FromJID extrai o telefone da parte local de um JID WhatsApp
// (ex: "5511999990000@s.whatsapp.net").
func FromJID(jid, defaultCountryCode string) (string, error) {
	local := jid
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		local = jid[:idx]
	}
	if idx := strings.IndexByte(local, ':'); idx >= 0 {
		local = local[:idx]
	}
	return Normalize(local, defaultCountryCode)
}
