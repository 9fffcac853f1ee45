package cli

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
)

// projectFlags are the shared --path/--name selectors carried by most
// commands.
type projectFlags struct {
	path string
	name string
}

func (f *projectFlags) register(set *pflag.FlagSet) {
	set.StringVar(&f.path, "path", "", "Project path (defaults to the current directory)")
	set.StringVar(&f.name, "name", "", "Registered project display name")
}

// resolveProjectPath turns the selectors into a normalized project path.
// A display name matching more than one project is refused with exit code 2
// so scripts can distinguish ambiguity from absence.
func resolveProjectPath(reg *registry.Registry, flags projectFlags) (string, error) {
	if flags.path != "" {
		return paths.NormalizePath(flags.path)
	}
	if flags.name != "" {
		matches, err := reg.FindProjectsByName(flags.name)
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return "", fmt.Errorf("no active project found with name %q", flags.name)
		}
		if len(matches) > 1 {
			fmt.Printf("Display name '%s' is ambiguous. Provide --path. Candidates:\n", flags.name)
			for _, row := range matches {
				fmt.Printf("- %s\n", row.Path)
			}
			return "", NewCodedError(NewSilentError(fmt.Errorf("ambiguous display name %q", flags.name)), 2)
		}
		return paths.NormalizePath(matches[0].Path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return paths.NormalizePath(cwd)
}
