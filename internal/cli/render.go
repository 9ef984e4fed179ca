package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/ivnvaldz7/pokeclient/pokeapi"
)

// render writes v in the selected format; text draws it with the theme.
func (a *app) render(v interface{}, text func(*theme) string) error {
	switch a.format {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintln(a.out, text(newTheme(a.out)))
		return err
	}
}

type theme struct {
	Title  lipgloss.Style
	Subtle lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Border lipgloss.Style
	Badge  lipgloss.Style
}

// newTheme binds styles to w so colors are dropped when w is not a terminal.
func newTheme(w io.Writer) *theme {
	r := lipgloss.NewRenderer(w)
	accent := lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"}
	muted := lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#8A8A8A"}
	return &theme{
		Title:  r.NewStyle().Bold(true).Foreground(accent),
		Subtle: r.NewStyle().Foreground(muted),
		Header: r.NewStyle().Bold(true).Foreground(accent).Padding(0, 1),
		Cell:   r.NewStyle().Padding(0, 1),
		Border: r.NewStyle().Foreground(muted),
		Badge:  r.NewStyle().Bold(true),
	}
}

func (t *theme) table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(t.Border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return t.Header
			}
			return t.Cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func (t *theme) pokemon(p pokeapi.Summary) string {
	var b strings.Builder
	b.WriteString(t.Title.Render(fmt.Sprintf("#%03d %s", p.ID, p.Name)))
	b.WriteString("  ")
	b.WriteString(t.Badge.Render(strings.Join(p.Types, " / ")))
	b.WriteString("\n")
	b.WriteString(t.Subtle.Render(fmt.Sprintf("height %.1f m, weight %.1f kg", float64(p.Height)/10, float64(p.Weight)/10)))
	b.WriteString("\n")
	b.WriteString(t.table([]string{"Stat", "Base"}, [][]string{
		{"HP", strconv.Itoa(p.Stats.HP)},
		{"Attack", strconv.Itoa(p.Stats.Attack)},
		{"Defense", strconv.Itoa(p.Stats.Defense)},
		{"Sp. Atk", strconv.Itoa(p.Stats.SpecialAttack)},
		{"Sp. Def", strconv.Itoa(p.Stats.SpecialDefense)},
		{"Speed", strconv.Itoa(p.Stats.Speed)},
	}))
	if p.Image != nil {
		b.WriteString("\n")
		b.WriteString(t.Subtle.Render(*p.Image))
	}
	return b.String()
}

func (t *theme) page(p pokeapi.ListPage) string {
	rows := make([][]string, len(p.Results))
	for i, s := range p.Results {
		rows[i] = []string{
			strconv.Itoa(s.ID),
			s.Name,
			strings.Join(s.Types, "/"),
			strconv.Itoa(s.Stats.HP),
			strconv.Itoa(s.Stats.Attack),
			strconv.Itoa(s.Stats.Defense),
			strconv.Itoa(s.Stats.SpecialAttack),
			strconv.Itoa(s.Stats.SpecialDefense),
			strconv.Itoa(s.Stats.Speed),
		}
	}

	footer := []string{fmt.Sprintf("%d total", p.Count)}
	if p.PrevOffset != nil {
		footer = append(footer, fmt.Sprintf("prev: --offset %d", *p.PrevOffset))
	}
	if p.NextOffset != nil {
		footer = append(footer, fmt.Sprintf("next: --offset %d", *p.NextOffset))
	}

	return t.table([]string{"#", "Name", "Types", "HP", "Atk", "Def", "SpA", "SpD", "Spe"}, rows) +
		"\n" + t.Subtle.Render(strings.Join(footer, "  "))
}

func (t *theme) namedIDs(items []pokeapi.NamedID) string {
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{strconv.Itoa(it.ID), it.Name}
	}
	return t.table([]string{"#", "Name"}, rows)
}

func (t *theme) suggestions(s pokeapi.Suggestions) string {
	if len(s.Names) == 0 {
		return t.Subtle.Render(fmt.Sprintf("No Pokémon match %q.", s.Query))
	}
	lines := make([]string, len(s.Names))
	for i, n := range s.Names {
		if n == s.Query {
			lines[i] = t.Title.Render(n)
			continue
		}
		lines[i] = n
	}
	return strings.Join(lines, "\n")
}
