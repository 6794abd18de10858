package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func assignmentLabel(a model.Assignment) string {
	if !a.IsAssigned() {
		return "-"
	}
	return a.String()
}

func printEntityTable(e *model.Entity) {
	fmt.Printf("ID:          %s\n", e.ID)
	fmt.Printf("Kind:        %s\n", e.Kind)
	fmt.Printf("Name:        %s\n", e.Name)
	fmt.Printf("Assignment:  %s\n", assignmentLabel(e.Assignment))
	fmt.Printf("Status:      %s\n", e.Status)
	fmt.Printf("Version:     %d\n", e.Version)
	fmt.Printf("Created At:  %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated At:  %s\n", e.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printEntityListTable(entities []*model.Entity, total int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tASSIGNMENT\tSTATUS\tVERSION")
	for _, e := range entities {
		name := e.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			e.ID, e.Kind, name, assignmentLabel(e.Assignment), e.Status, e.Version)
	}
	w.Flush()
	fmt.Printf("\n%d entities (%d total)\n", len(entities), total)
}

func printEvent(ev model.AssignmentEvent) {
	ts := ev.Timestamp.Format(time.TimeOnly)
	switch ev.Kind {
	case model.EventAssignmentUpdated:
		fmt.Printf("%s  #%d  %s/%s -> %s\n", ts, ev.Seq, ev.EntityKind, ev.EntityID, assignmentLabel(ev.NewValue))
	case model.EventResyncRequired:
		fmt.Printf("%s  #%d  resync required\n", ts, ev.Seq)
	default:
		fmt.Printf("%s  #%d  %s %s/%s\n", ts, ev.Seq, ev.Kind, ev.EntityKind, ev.EntityID)
	}
}
