// Package workitem builds and issues JSON-patch mutations against the Azure DevOps
// work item tracking REST API.
//
// Invariants:
// - Update and link documents always start with a test operation on /rev.
// - Optional fields that are empty (or priority <= 0) are never sent.
// - Each client call makes exactly one HTTP attempt; conflicts are reported, never retried.
//
// Usage:
//
//	builder := workitem.NewBuilder("https://dev.azure.com/acme", "Backlog")
//	doc, _ := builder.BuildCreate("User Story", workitem.CreateFields{Title: "Export to CSV"})
//	client, _ := workitem.NewClient(workitem.ClientConfig{...})
//	ref, _ := client.Create(ctx, "User Story", doc)
//	_ = ref.Rev // pass as the revision of the next mutation
package workitem
