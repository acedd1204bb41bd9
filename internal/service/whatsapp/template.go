package whatsapp

import (
	"regexp"
	"strings"
)

// Limite de texto aceito pelo WhatsApp para mensagens de texto.
const maxMessageLength = 4096

// Rótulo usado quando não há nome conhecido para o destinatário.
const genericContactLabel = "Cliente"

var (
	markupPattern     = regexp.MustCompile(`(?is)<\s*/?\s*(script|iframe|object|embed|style|link|meta)[^>]*>`)
	jsProtocolPattern = regexp.MustCompile(`(?i)javascript\s*:`)
)

// TemplateVars são os valores resolvidos para os placeholders suportados.
type TemplateVars struct {
	ClientName  string
	ContactName string
	Phone       string
}

// RenderTemplate sanitiza o template e substitui os placeholders literais
// {nome_cliente}, {nome_contato} e {telefone}. Placeholders desconhecidos
// permanecem intactos. Os valores também passam pela sanitização antes da
// inserção, pois o template pode vir de configuração armazenada.
func RenderTemplate(template string, vars TemplateVars) string {
	out := sanitizeText(template)

	clientName := vars.ClientName
	if strings.TrimSpace(clientName) == "" {
		clientName = vars.ContactName
	}
	if strings.TrimSpace(clientName) == "" {
		clientName = genericContactLabel
	}

	contactName := vars.ContactName
	if strings.TrimSpace(contactName) == "" {
		contactName = genericContactLabel
	}

	out = strings.ReplaceAll(out, "{nome_cliente}", sanitizeText(clientName))
	out = strings.ReplaceAll(out, "{nome_contato}", sanitizeText(contactName))
	out = strings.ReplaceAll(out, "{telefone}", sanitizeText(vars.Phone))

	return truncateRunes(out, maxMessageLength)
}

// sanitizeText remove caracteres de controle e neutraliza padrões de
// injeção de markup. Quebras de linha e tabs são preservados.
func sanitizeText(s string) string {
	s = markupPattern.ReplaceAllString(s, "")
	s = jsProtocolPattern.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return truncateRunes(b.String(), maxMessageLength)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
