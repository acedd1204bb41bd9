// Package availability decide se um instante está dentro da janela de
// atendimento semanal configurada para uma instância.
package availability

import (
	"fmt"
	"time"

	"github.com/zapgestor/zapgestor/internal/storage/model"
)

// ParseClock converte "HH:mm" em minutos desde a meia-noite.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("availability: horário inválido %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate garante que todo dia habilitado carrega início e fim em formato
// 24h válido. Um dia habilitado com horário ilegível nunca seria considerado
// disponível, então a agenda é rejeitada na gravação.
func Validate(schedule model.Schedule) error {
	for weekday, day := range schedule {
		if !day.Enabled {
			continue
		}
		if _, err := ParseClock(day.Start); err != nil {
			return fmt.Errorf("availability: %s: início inválido %q", weekday, day.Start)
		}
		if _, err := ParseClock(day.End); err != nil {
			return fmt.Errorf("availability: %s: fim inválido %q", weekday, day.End)
		}
	}
	return nil
}

// IsAvailable informa se now cai dentro da janela do dia correspondente.
// Janela com End < Start atravessa a meia-noite: disponível quando o
// instante está depois do início OU antes do fim.
func IsAvailable(schedule model.Schedule, now time.Time) bool {
	day, ok := schedule[now.Weekday()]
	if !ok || !day.Enabled {
		return false
	}

	start, err := ParseClock(day.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(day.End)
	if err != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()

	if end < start {
		return minutes >= start || minutes <= end
	}
	return minutes >= start && minutes <= end
}

// NextAvailable devolve o próximo início de janela a partir de now,
// varrendo no máximo 7 dias (incluindo hoje). Retorna zero e false
// quando nenhum dia está habilitado.
func NextAvailable(schedule model.Schedule, now time.Time) (time.Time, bool) {
	for offset := 0; offset < 7; offset++ {
		candidate := now.AddDate(0, 0, offset)
		day, ok := schedule[candidate.Weekday()]
		if !ok || !day.Enabled {
			continue
		}

		start, err := ParseClock(day.Start)
		if err != nil {
			continue
		}

		opening := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
			start/60, start%60, 0, 0, now.Location())

		// Hoje só conta se a abertura ainda não passou.
		if offset == 0 && !opening.After(now) {
			continue
		}

		return opening, true
	}

	return time.Time{}, false
}
