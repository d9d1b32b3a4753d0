package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/route"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the routes of the project",
	Long: `Discover the project's functions and assets and print their routes.

Fails when neither a functions nor an assets directory exists, or when two
files map to the same route.`,
	Args: cobra.NoArgs,
	RunE: runRoutes,
}

func init() {
	routesCmd.Flags().String("base-url", "", "Print absolute URLs under this base")
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd, false)
	if err != nil {
		return err
	}
	defer p.Close()

	base, _ := cmd.Flags().GetString("base-url")
	printRoutes(cmd.OutOrStdout(), p.store.Load(), base)
	return nil
}

var (
	headingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	routeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	protectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	privateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	emptyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// printRoutes writes the functions and assets of t, grouped, one per line.
func printRoutes(w io.Writer, t *route.Table, base string) {
	base = strings.TrimRight(base, "/")
	fmt.Fprintln(w, renderGroup("Functions", t.Functions(), base))
	fmt.Fprintln(w, renderGroup("Assets", t.Assets(), base))
}

func renderGroup(title string, resources []resource.Resource, base string) string {
	lines := []string{headingStyle.Render(title)}
	if len(resources) == 0 {
		lines = append(lines, "  "+emptyStyle.Render("none"))
	}
	for _, r := range resources {
		lines = append(lines, "  "+renderRoute(r, base))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRoute(r resource.Resource, base string) string {
	switch r.Access {
	case resource.Protected:
		return protectedStyle.Render(base+r.RoutePath) + " " + protectedStyle.Render("[protected]")
	case resource.Private:
		return privateStyle.Render(r.RoutePath + " [private]")
	default:
		return routeStyle.Render(base + r.RoutePath)
	}
}
