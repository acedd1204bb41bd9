package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		cc   string
		want string
	}{
		{"ja normalizado", "+5511987654321", "55", "+5511987654321"},
		{"com formatacao", "+55 (11) 98765-4321", "55", "+5511987654321"},
		{"sem ddi recebe pais padrao", "11987654321", "55", "+5511987654321"},
		{"escape internacional 00", "005511987654321", "55", "+5511987654321"},
		{"ddi presente sem plus", "5511987654321", "55", "+5511987654321"},
		{"fixo curto", "1133224455", "55", "+551133224455"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw, tc.cc)
			if err != nil {
				t.Fatalf("Normalize(%q): erro inesperado: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, esperado %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotente(t *testing.T) {
	first, err := Normalize("(11) 98765-4321", "55")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	second, err := Normalize(first, "55")
	if err != nil {
		t.Fatalf("erro na segunda normalização: %v", err)
	}
	if first != second {
		t.Fatalf("normalização não idempotente: %q != %q", first, second)
	}
}

func TestNormalizeInvalido(t *testing.T) {
	cases := []string{"", "   ", "abc", "123", "+12345678901234567890"}
	for _, raw := range cases {
		if _, err := Normalize(raw, "55"); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Normalize(%q): esperado ErrInvalid, veio %v", raw, err)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("+5511987654321", "(11) 98765-4321", "55") {
		t.Fatal("telefones equivalentes deveriam ser iguais após normalizar")
	}
	if Equal("+5511987654321", "+5511987654322", "55") {
		t.Fatal("telefones distintos não deveriam ser iguais")
	}
	if Equal("abc", "+5511987654321", "55") {
		t.Fatal("entrada inválida nunca é igual a nada")
	}
}

func TestFromJID(t *testing.T) {
	got, err := FromJID("5511987654321@s.whatsapp.net", "55")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if got != "+5511987654321" {
		t.Fatalf("FromJID = %q, esperado +5511987654321", got)
	}

	// Sufixo de device não faz parte do número.
	got, err = FromJID("5511987654321:12@s.whatsapp.net", "55")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if got != "+5511987654321" {
		t.Fatalf("FromJID com device = %q, esperado +5511987654321", got)
	}
}

func TestIsGroupJID(t *testing.T) {
	if !IsGroupJID("120363123456789012@g.us") {
		t.Fatal("JID de grupo deveria ser reconhecido")
	}
	if IsGroupJID("5511987654321@s.whatsapp.net") {
		t.Fatal("JID individual não é grupo")
	}
	if IsGroupJID("") {
		t.Fatal("JID vazio não é grupo")
	}
}
