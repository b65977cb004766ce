package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/projects"
)

var (
	projectColor     string
	projectEditName  string
	projectEditColor string
	projectArchived  bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectEditCmd = &cobra.Command{
	Use:   "edit <project>",
	Short: "Rename a project or change its color",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectEdit,
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive <project>",
	Short: "Archive a project, or restore it if it is archived",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectArchive,
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <project>",
	Short: "Delete a project and all of its quarter hours",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectRm,
}

func init() {
	projectListCmd.Flags().BoolVar(&projectArchived, "archived", false, "Include archived projects")
	projectAddCmd.Flags().StringVar(&projectColor, "color", "", "Color as #rrggbb")
	projectEditCmd.Flags().StringVar(&projectEditName, "name", "", "New name")
	projectEditCmd.Flags().StringVar(&projectEditColor, "color", "", "New color as #rrggbb")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectEditCmd)
	projectCmd.AddCommand(projectArchiveCmd)
	projectCmd.AddCommand(projectRmCmd)
}

func runProjectList(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	list := s.projects.Active()
	if projectArchived {
		list = s.projects.All()
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No projects found.")
		return nil
	}
	for _, p := range list {
		fmt.Fprintf(out, "%-20s %s  %s%s\n", p.Name, p.Color, p.ID, archivedTag(p))
	}
	return nil
}

func archivedTag(p model.Project) string {
	if p.Archived {
		return "  (archived)"
	}
	return ""
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.projects.Add(cmd.Context(), args[0], projectColor)
	if err != nil {
		return projectError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.Name, p.ID)
	return nil
}

func runProjectEdit(cmd *cobra.Command, args []string) error {
	if projectEditName == "" && projectEditColor == "" {
		return usageErrorf("nothing to change, pass --name or --color")
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.projects.Resolve(args[0])
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	name, color := p.Name, p.Color
	if projectEditName != "" {
		name = projectEditName
	}
	if projectEditColor != "" {
		color = projectEditColor
	}
	if _, err := s.projects.Update(cmd.Context(), p.ID, name, color); err != nil {
		return projectError(err)
	}
	return nil
}

func runProjectArchive(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.projects.Resolve(args[0])
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	p, err = s.projects.ToggleArchive(cmd.Context(), p.ID)
	if err != nil {
		return projectError(err)
	}
	if p.Archived {
		fmt.Fprintf(cmd.OutOrStdout(), "%s archived\n", p.Name)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s restored\n", p.Name)
	}
	return nil
}

func runProjectRm(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.projects.Resolve(args[0])
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	if err := s.projects.Delete(cmd.Context(), p.ID); err != nil {
		return projectError(err)
	}
	return nil
}

// projectError maps service errors to exit codes.
func projectError(err error) error {
	for _, target := range []error{
		projects.ErrInvalidName,
		projects.ErrInvalidColor,
		projects.ErrDuplicateName,
		projects.ErrUnknown,
		projects.ErrBusy,
	} {
		if errors.Is(err, target) {
			return &exitError{code: exitUsage, err: err}
		}
	}
	return storeError(err)
}
