package main

import (
	"sort"

	"github.com/spf13/cobra"

	"tabletalk/internal/semantic"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and validate the semantic layer",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the loaded schema",
	RunE:  runSchemaShow,
}

var schemaCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the schema directory without starting the engine",
	RunE:  runSchemaCheck,
}

func init() {
	schemaCmd.AddCommand(schemaShowCmd, schemaCheckCmd)
	rootCmd.AddCommand(schemaCmd)
}

func loadRegistry() (*semantic.Registry, error) {
	registry := semantic.NewRegistry(logger)
	if err := registry.LoadDir(cfg.Schema.Dir); err != nil {
		return nil, err
	}
	return registry, nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	s := registry.Current()

	cmd.Printf("schema %q (version %d)\n", s.Name, registry.Version())
	for _, name := range sortedKeys(s.Tables) {
		t := s.Tables[name]
		cmd.Printf("\ntable %s\n", t.Name)
		for _, c := range t.Columns {
			null := ""
			if c.Nullable {
				null = " (nullable)"
			}
			cmd.Printf("  %-20s %s%s\n", c.Name, c.Type, null)
		}
	}
	for _, name := range sortedKeys(s.Views) {
		v := s.Views[name]
		cmd.Printf("\nview %s <- %v\n", v.Name, v.Bases)
	}
	for _, rel := range s.Relationships {
		cmd.Printf("\n%s -> %s (%s)\n", rel.Source, rel.Target, rel.Cardinality)
	}
	return nil
}

func runSchemaCheck(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	s := registry.Current()
	cmd.Printf("ok: %d tables, %d views, %d relationships\n",
		len(s.Tables), len(s.Views), len(s.Relationships))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
