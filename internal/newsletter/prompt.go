package newsletter

import (
	"fmt"
	"strings"

	"newsletterbot/internal/stats"
)

// Blocks are the pre-formatted data sections handed to the model.
type Blocks struct {
	MVP        string
	Highlights string
	Teams      string
	Context    string
	Trends     string
}

func BuildBlocks(w stats.Weekly, names stats.TeamNames) Blocks {
	var b Blocks

	mvp := w.MVP
	b.MVP = fmt.Sprintf("%s (%s): %s VAL, %s PTS (TS%%: %s), %s REB.",
		mvp.Name, names.Full(mvp.Team), stats.Bold(mvp.VAL, 0, false),
		stats.Bold(mvp.PTS, 0, false), stats.Bold(mvp.TSPct, 1, true), stats.Bold(mvp.RebT, 0, false))

	var hl strings.Builder
	for _, r := range w.Highlights {
		fmt.Fprintf(&hl, "- %s (%s): %s VAL.\n", r.Name, names.Full(r.Team), stats.Bold(r.VAL, 0, false))
	}
	b.Highlights = hl.String()

	if len(w.Teams) > 0 {
		b.Teams = fmt.Sprintf("- Mejor Ataque: %s (%s pts/100).\n- Fluidez: %s (%s ast/100).\n- Control: %s (%s perdidas/100).\n",
			names.Full(w.BestOffense.Team), stats.Bold(w.BestOffense.ORTG, 1, false),
			names.Full(w.BestPassing.Team), stats.Bold(w.BestPassing.ASTRatio, 1, false),
			names.Full(w.MostCareful.Team), stats.Bold(w.MostCareful.TORatio, 1, false))
	}

	var ctx strings.Builder
	if w.Sniper != nil {
		fmt.Fprintf(&ctx, "- Francotirador (TS%%): %s (%s).\n", w.Sniper.Name, stats.Bold(w.Sniper.TSPct, 1, true))
	}
	if w.UsageLead != nil {
		fmt.Fprintf(&ctx, "- Dominador (USG%%): %s (%s de uso).\n", w.UsageLead.Name, stats.Bold(w.UsageLead.USGPct, 1, true))
	}
	b.Context = ctx.String()

	var tr strings.Builder
	for _, t := range w.Trends {
		fmt.Fprintf(&tr, "- %s (%s): %s VAL, %s PTS.\n", t.Name, t.Team, stats.Bold(t.VAL, 1, false), stats.Bold(t.PTS, 1, false))
	}
	b.Trends = tr.String()

	return b
}

// BuildPrompts returns the system and user prompts for one week.
func BuildPrompts(week, seasonLabel string, b Blocks) (string, string) {
	system := fmt.Sprintf("Actúa como Periodista ACB (Temporada %s). Escribes la crónica semanal de una newsletter de análisis de datos. "+
		"Usa solo los datos proporcionados; no inventes cifras.", seasonLabel)

	var user strings.Builder
	user.WriteString("DATOS A PROCESAR (Nombres abreviados):\n")
	fmt.Fprintf(&user, "MVP: %s\n", b.MVP)
	fmt.Fprintf(&user, "DESTACADOS:\n%s", orNone(b.Highlights))
	fmt.Fprintf(&user, "EQUIPOS:\n%s", orNone(b.Teams))
	fmt.Fprintf(&user, "CONTEXTO:\n%s", orNone(b.Context))
	fmt.Fprintf(&user, "TENDENCIAS:\n%s\n", orNone(b.Trends))

	user.WriteString("INSTRUCCIONES:\n")
	user.WriteString("- Cuando conozcas con certeza el nombre completo de un jugador abreviado, úsalo; si no, mantén la abreviatura.\n")
	user.WriteString("- Mantén las cifras en negrita tal como aparecen.\n\n")

	user.WriteString("ESTRUCTURA DE SALIDA:\n")
	fmt.Fprintf(&user, "## 🏀 Informe ACB: %s\n\n", week)
	user.WriteString("### 👑 El MVP\n[Nombre y análisis]\n\n")
	user.WriteString("### 🚀 Radar de Eficiencia\n[Nombres y análisis]\n\n")
	user.WriteString("### 🧠 Pizarra Táctica\n[Equipos]\n\n")
	fmt.Fprintf(&user, "### 🔥 Tendencias (Últimas Jornadas)\n%s", b.Trends)

	return system, user.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "- (sin datos)\n"
	}
	return s
}

// Tidy applies the layout fixes the draft needs before it is stored: a blank
// line between a heading-like line ending in ':' and the list below it.
func Tidy(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(strings.ReplaceAll(text, ":\n-", ":\n\n-")) + "\n"
}

// Title is the first line of the draft without markdown heading marks.
func Title(markdown string) string {
	first, _, _ := strings.Cut(strings.TrimLeft(markdown, "\n"), "\n")
	return strings.TrimSpace(strings.ReplaceAll(first, "#", ""))
}
