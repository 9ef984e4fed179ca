package cli

import (
	"github.com/spf13/cobra"

	"github.com/ivnvaldz7/pokeclient"
	"github.com/ivnvaldz7/pokeclient/pokeapi"
)

func newGetCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name|id>",
		Short: "Show one Pokémon.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			p, err := a.svc.PokemonByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(p, func(t *theme) string { return t.pokemon(p) })
		},
	}
}

type listFlags struct {
	offset     int
	limit      int
	typeName   string
	generation string
	sort       string
	desc       bool
}

func newListCmd(getApp func() *app) *cobra.Command {
	f := new(listFlags)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a page of Pokémon.",
		Long: `List a page of Pokémon, optionally filtered by type and generation.

Sorting applies within the page.

Examples:
  pokedex list --limit 10
  pokedex list --type fire --generation generation-i --sort attack --desc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			q := pokeapi.Query{
				Offset:  f.offset,
				Limit:   f.limit,
				Filters: pokeapi.Filters{Type: f.typeName, Generation: f.generation},
				SortKey: pokeapi.SortKey(f.sort),
				SortDir: pokeapi.Asc,
			}
			if f.desc {
				q.SortDir = pokeapi.Desc
			}
			p, err := a.svc.Browse(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.render(p, func(t *theme) string { return t.page(p) })
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&f.offset, "offset", 0, "index of the first result")
	fs.IntVar(&f.limit, "limit", pokeapi.DefaultPageSize, "page size")
	fs.StringVar(&f.typeName, "type", "", "only Pokémon of this type")
	fs.StringVar(&f.generation, "generation", "", "only Pokémon of this generation")
	fs.StringVar(&f.sort, "sort", string(pokeapi.SortID), "sort key: id, name, hp, attack, defense, specialAttack, specialDefense or speed")
	fs.BoolVar(&f.desc, "desc", false, "sort descending")
	return cmd
}

func newTypesCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List Pokémon types.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			types, err := a.svc.Types(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(types, func(t *theme) string { return t.namedIDs(types) })
		},
	}
}

func newGenerationsCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generations",
		Short: "List Pokémon generations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			gens, err := a.svc.Generations(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(gens, func(t *theme) string { return t.namedIDs(gens) })
		},
	}
}

func newSuggestCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <query>",
		Short: "Suggest Pokémon names matching a query.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			s, err := a.svc.Suggest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(s, func(t *theme) string { return t.suggestions(s) })
		},
	}
}

func newVersionCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := getApp()
			info := pokeclient.GetVersionInfo()
			return a.render(info, func(*theme) string { return pokeclient.GetVersion() })
		},
	}
}
