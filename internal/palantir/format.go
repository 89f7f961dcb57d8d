package palantir

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"shadowfax/internal/models"
)

// Texts are rendered for Telegram's HTML parse mode, so every backend string
// goes through html.EscapeString.

// FormatTerminalInfo renders the terminal card with a clickable phone number
func FormatTerminalInfo(info *models.TerminalInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏪 <b>Мережа АЗС:</b> %s\n", html.EscapeString(info.ClientName))
	fmt.Fprintf(&b, "⛽ <b>Номер терміналу:</b> %d\n", info.TerminalID)
	fmt.Fprintf(&b, "📍 <b>Адреса:</b> %s\n", html.EscapeString(info.Address))

	phone := strings.TrimSpace(info.Phone)
	if phone == "" {
		b.WriteString("📞 <b>Телефон:</b> —")
	} else {
		dial := strings.Map(func(r rune) rune {
			if r == '+' || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, phone)
		fmt.Fprintf(&b, "📞 <b>Телефон:</b> <a href=\"tel:%s\">%s</a>", dial, html.EscapeString(phone))
	}
	return b.String()
}

// StationLines renders one line per АЗС
func StationLines(stations []models.Station) []string {
	lines := make([]string, 0, len(stations))
	for _, s := range stations {
		lines = append(lines, fmt.Sprintf("⛽ <b>%d</b> — %s", s.TerminalID, html.EscapeString(s.Name)))
	}
	return lines
}

// ReservoirLines renders one block per tank
func ReservoirLines(reservoirs []models.Reservoir) []string {
	lines := make([]string, 0, len(reservoirs))
	for _, r := range reservoirs {
		fill := ""
		if r.Capacity > 0 {
			fill = fmt.Sprintf(" (%.0f%%)", r.Volume/r.Capacity*100)
		}
		lines = append(lines, fmt.Sprintf(
			"🛢 <b>Резервуар %d</b> — %s\n    Обсяг: %s / %s л%s\n    Рівень: %s мм, t° %s",
			r.TankID, html.EscapeString(r.FuelName),
			num(r.Volume), num(r.Capacity), fill,
			num(r.Level), num(r.Temperature),
		))
	}
	return lines
}

// DispenserLines renders one block per PRK
func DispenserLines(dispensers []models.Dispenser) []string {
	lines := make([]string, 0, len(dispensers))
	for _, d := range dispensers {
		fuels := "—"
		if len(d.Fuels) > 0 {
			escaped := make([]string, len(d.Fuels))
			for i, f := range d.Fuels {
				escaped[i] = html.EscapeString(f)
			}
			fuels = strings.Join(escaped, ", ")
		}
		lines = append(lines, fmt.Sprintf(
			"⛽ <b>ПРК %d</b> — %s\n    Протокол: %s, пістолетів: %d\n    Пальне: %s",
			d.DispenserID, html.EscapeString(orDash(d.Model)),
			html.EscapeString(orDash(d.Protocol)), d.Nozzles, fuels,
		))
	}
	return lines
}

// PosLines renders one block per RRO
func PosLines(pos []models.PosData) []string {
	lines := make([]string, 0, len(pos))
	for _, p := range pos {
		lines = append(lines, fmt.Sprintf(
			"🧾 <b>РРО %d</b> — %s\n    Заводський №: %s\n    Фіскальний №: %s\n    Стан: %s",
			p.PosID, html.EscapeString(orDash(p.Model)),
			html.EscapeString(orDash(p.FactoryNumber)),
			html.EscapeString(orDash(p.RegNumber)),
			html.EscapeString(orDash(p.Status)),
		))
	}
	return lines
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}
