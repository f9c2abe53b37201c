package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/messaging"
	"github.com/spf13/cobra"
)

func newProjectsCmd(flags *globalFlags) *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		Short:   "Manage projects through the gate",
	}

	projectsCmd.AddCommand(
		newProjectsListCmd(flags),
		newProjectsCreateCmd(flags),
		newProjectsUpdateCmd(flags),
		newProjectsDeleteCmd(flags),
		newProjectsWatchCmd(flags),
	)
	return projectsCmd
}

func newProjectsListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			reply, err := request[*api.ListProjectsReply](cmd.Context(), s, &api.ListProjectsCommand{})
			if err != nil {
				return err
			}
			printProjects(reply.Projects)
			return nil
		},
	}
}

func newProjectsCreateCmd(flags *globalFlags) *cobra.Command {
	var title, description string

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			reply, err := request[*api.CreateProjectReply](cmd.Context(), s, &api.CreateProjectCommand{
				Title:       title,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Project %d created\n", reply.ProjectID)
			return nil
		},
	}

	createCmd.Flags().StringVar(&title, "title", "", "Project title")
	createCmd.Flags().StringVar(&description, "description", "", "Project description")
	createCmd.MarkFlagRequired("title")
	return createCmd
}

func newProjectsUpdateCmd(flags *globalFlags) *cobra.Command {
	var (
		title       string
		description string
		selection   []string
		features    []string
	)

	updateCmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update the head, feature selection or feature data of a project",
		Long: `Only the parts named by flags are updated. --title and --description replace the head,
--select replaces the feature selection and --feature name=<json> writes the data of a selected feature.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}

			update := &api.UpdateProjectCommand{ProjectID: id}
			if cmd.Flags().Changed("title") || cmd.Flags().Changed("description") {
				update.Scope |= api.UpdateScopeHead
				update.Title = title
				update.Description = description
			}
			if cmd.Flags().Changed("select") {
				update.Scope |= api.UpdateScopeFeaturesSelection
				update.FeaturesSelection = selection
			}
			if len(features) > 0 {
				update.Scope |= api.UpdateScopeFeaturesData
				if update.Features, err = parseFeatures(features); err != nil {
					return err
				}
			}
			if update.Scope == api.UpdateScopeNone {
				return fmt.Errorf("nothing to update")
			}

			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := request[*api.UpdateProjectReply](cmd.Context(), s, update); err != nil {
				return err
			}
			fmt.Printf("Project %d updated\n", id)
			return nil
		},
	}

	updateCmd.Flags().StringVar(&title, "title", "", "New project title")
	updateCmd.Flags().StringVar(&description, "description", "", "New project description")
	updateCmd.Flags().StringSliceVar(&selection, "select", nil, "Selected features")
	updateCmd.Flags().StringArrayVar(&features, "feature", nil, "Feature data as name=<json>")
	return updateCmd
}

func newProjectsDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := request[*api.DeleteProjectReply](cmd.Context(), s, &api.DeleteProjectCommand{ProjectID: id}); err != nil {
				return err
			}
			fmt.Printf("Project %d deleted\n", id)
			return nil
		},
	}
}

func newProjectsWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print project changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := s.comp.NewService("watch")
			err = svc.AddHandler(api.ProjectsChangedEventName, messaging.Handle(
				func(ctx *messaging.MessageContext, ev *api.ProjectsChangedEvent) error {
					fmt.Printf("%s  project %d %s by %s\n",
						time.Now().Format(time.TimeOnly), ev.ProjectID, ev.Change, ev.GetOrigin())
					return nil
				}))
			if err != nil {
				return err
			}

			fmt.Println("Watching project changes, press Ctrl+C to stop")
			<-cmd.Context().Done()
			return nil
		},
	}
}

func parseProjectID(arg string) (api.ProjectID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", arg)
	}
	return api.ProjectID(id), nil
}

func parseFeatures(values []string) (map[string]json.RawMessage, error) {
	features := make(map[string]json.RawMessage, len(values))
	for _, value := range values {
		name, data, ok := strings.Cut(value, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("feature %q is not name=<json>", value)
		}
		if !json.Valid([]byte(data)) {
			return nil, fmt.Errorf("feature %s: invalid JSON", name)
		}
		features[name] = json.RawMessage(data)
	}
	return features, nil
}

func printProjects(projects []api.Project) {
	if len(projects) == 0 {
		fmt.Println("No projects found")
		return
	}

	fmt.Printf("%-8s %-40s %-20s %-30s\n", "ID", "Title", "Created", "Features")
	fmt.Println(strings.Repeat("-", 100))

	for _, p := range projects {
		features := make([]string, 0, len(p.Features))
		for name := range p.Features {
			features = append(features, name)
		}
		slices.Sort(features)

		fmt.Printf("%-8d %-40s %-20s %-30s\n",
			p.ProjectID,
			truncate(p.Title, 40),
			time.Unix(p.CreationTime, 0).Format(time.DateTime),
			truncate(strings.Join(features, ","), 30),
		)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
