package availability

import (
	"testing"
	"time"

	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// 2026-03-02 é uma segunda-feira.
func monday(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("08:30")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if got != 8*60+30 {
		t.Fatalf("ParseClock(08:30) = %d, esperado %d", got, 8*60+30)
	}

	if _, err := ParseClock("25:00"); err == nil {
		t.Fatal("horário inválido deveria falhar")
	}
}

func TestIsAvailableJanelaComum(t *testing.T) {
	schedule := model.Schedule{
		time.Monday: {Enabled: true, Start: "08:00", End: "18:00"},
	}

	if !IsAvailable(schedule, monday(12, 0)) {
		t.Fatal("meio-dia de segunda deveria estar disponível")
	}
	if !IsAvailable(schedule, monday(8, 0)) {
		t.Fatal("abertura é inclusiva")
	}
	if !IsAvailable(schedule, monday(18, 0)) {
		t.Fatal("fechamento é inclusivo")
	}
	if IsAvailable(schedule, monday(7, 59)) {
		t.Fatal("antes da abertura não há atendimento")
	}
	if IsAvailable(schedule, monday(18, 1)) {
		t.Fatal("depois do fechamento não há atendimento")
	}
}

func TestIsAvailableDiaDesabilitado(t *testing.T) {
	schedule := model.Schedule{
		time.Monday: {Enabled: false, Start: "08:00", End: "18:00"},
	}
	if IsAvailable(schedule, monday(12, 0)) {
		t.Fatal("dia desabilitado nunca está disponível")
	}

	// Dia ausente do mapa equivale a desabilitado.
	if IsAvailable(model.Schedule{}, monday(12, 0)) {
		t.Fatal("dia ausente nunca está disponível")
	}
}

func TestIsAvailableJanelaNoturna(t *testing.T) {
	// End < Start: janela atravessa a meia-noite.
	schedule := model.Schedule{
		time.Monday: {Enabled: true, Start: "22:00", End: "06:00"},
	}

	if !IsAvailable(schedule, monday(23, 0)) {
		t.Fatal("23:00 está dentro da janela noturna")
	}
	if !IsAvailable(schedule, monday(5, 0)) {
		t.Fatal("05:00 está dentro da janela noturna")
	}
	if IsAvailable(schedule, monday(12, 0)) {
		t.Fatal("meio-dia está fora da janela noturna")
	}
}

func TestNextAvailable(t *testing.T) {
	schedule := model.Schedule{
		time.Monday:    {Enabled: true, Start: "08:00", End: "18:00"},
		time.Wednesday: {Enabled: true, Start: "09:00", End: "17:00"},
	}

	// Segunda às 12:00, abertura de hoje já passou: próxima é quarta.
	next, ok := NextAvailable(schedule, monday(12, 0))
	if !ok {
		t.Fatal("esperava próxima janela")
	}
	if next.Weekday() != time.Wednesday || next.Hour() != 9 {
		t.Fatalf("esperava quarta 09:00, veio %v", next)
	}

	// Segunda às 06:00, abertura de hoje ainda não chegou.
	next, ok = NextAvailable(schedule, monday(6, 0))
	if !ok {
		t.Fatal("esperava próxima janela")
	}
	if next.Weekday() != time.Monday || next.Hour() != 8 {
		t.Fatalf("esperava segunda 08:00, veio %v", next)
	}
}

func TestNextAvailableTudoDesabilitado(t *testing.T) {
	schedule := model.Schedule{
		time.Monday: {Enabled: false, Start: "08:00", End: "18:00"},
	}
	if _, ok := NextAvailable(schedule, monday(12, 0)); ok {
		t.Fatal("sem dias habilitados não há próxima janela")
	}
}

func TestValidate(t *testing.T) {
	valid := model.Schedule{
		time.Monday: {Enabled: true, Start: "08:00", End: "18:00"},
		// Dia desabilitado pode ficar sem janela.
		time.Sunday: {Enabled: false},
	}
	if err := Validate(valid); err != nil {
		t.Fatalf("agenda válida rejeitada: %v", err)
	}

	cases := []struct {
		name string
		day  model.DaySchedule
	}{
		{"hora impossível", model.DaySchedule{Enabled: true, Start: "25:99", End: "18:00"}},
		{"início vazio", model.DaySchedule{Enabled: true, Start: "", End: "18:00"}},
		{"fim em formato livre", model.DaySchedule{Enabled: true, Start: "08:00", End: "18h"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(model.Schedule{time.Monday: tc.day}); err == nil {
				t.Fatal("dia habilitado com horário ilegível deveria ser rejeitado")
			}
		})
	}
}
