// Package todotools defines the tool catalogs the orchestrator can offer the
// model. A Catalog is static configuration: the tools, the system instruction
// and the round budget of one orchestrator variant.
//
//   - Basic: add_item, mark_as_done, remove_item, get_list (one dispatch round)
//   - Assistant: addItem, setAsDone, removeItem, findItems, readFile, writeFile
//     (multi-round agent)
//   - Query: execute_query, the model writes SQL against the todos table
package todotools

import (
	"context"
	"fmt"

	"github.com/hupe1980/todomesh/tool"
)

// ItemStore is the part of store.Store the catalogs call into.
type ItemStore interface {
	Add(ctx context.Context, description string) (string, error)
	MarkDone(ctx context.Context, description string) (string, error)
	Remove(ctx context.Context, description string) (string, error)
	ListJSON(ctx context.Context) (string, error)
}

// QueryExecutor runs a raw statement and returns its rows serialized as JSON.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string) (string, error)
}

// Documents is the filesystem collaborator of the assistant catalog.
type Documents interface {
	Read(ctx context.Context) (string, error)
	WriteReport(ctx context.Context, text string) (string, error)
}

// Catalog is the static tool configuration of one orchestrator variant.
type Catalog struct {
	Name        string
	Tools       []tool.Tool
	Instruction string
	// Vars are template variables referenced by Instruction.
	Vars map[string]any
	// MaxRounds is the default dispatch budget of the variant.
	MaxRounds int
}

// Registry builds a tool.Registry over the catalog tools.
func (c Catalog) Registry(optFns ...func(o *tool.RegistryOptions)) (*tool.Registry, error) {
	return tool.NewRegistry(c.Tools, optFns...)
}

const basicInstruction = `You manage the user's todo list through the tools you are given.
Add new items with add_item, mark finished items with mark_as_done, delete items with remove_item and read the list with get_list.
Refer to existing items by their description; the closest matching item on the list is used.
Answer the user briefly once the tools have run.`

type descriptionArgs struct {
	Description string `json:"description" description:"The description of the todo list item"`
}

type listArgs struct {
	Description string `json:"description,omitempty" description:"Optional, ignored"`
}

// Basic returns the single-round catalog operating on descriptions.
func Basic(st ItemStore) Catalog {
	return Catalog{
		Name: "basic",
		Tools: []tool.Tool{
			tool.NewTypedTool("add_item", "Add item to todo list", func(ctx context.Context, a descriptionArgs) (any, error) {
				return st.Add(ctx, a.Description)
			}),
			tool.NewTypedTool("mark_as_done", "Mark the todo item as done", func(ctx context.Context, a descriptionArgs) (any, error) {
				return st.MarkDone(ctx, a.Description)
			}),
			tool.NewTypedTool("remove_item", "Remove item from the list", func(ctx context.Context, a descriptionArgs) (any, error) {
				return st.Remove(ctx, a.Description)
			}),
			tool.NewTypedTool("get_list", "Get items list", func(ctx context.Context, _ listArgs) (any, error) {
				return st.ListJSON(ctx)
			}),
		},
		Instruction: basicInstruction,
		MaxRounds:   1,
	}
}

// AssistantMaxRounds is the default budget of the assistant catalog.
const AssistantMaxRounds = 20

const assistantInstruction = `You are a helpful assistant.
Add or remove items provided by the user from the todo list or execute the requested actions on existing items.
You can read the user's document with readFile and save a report with writeFile.
As final answer return the entire list of the items.`

type contentArgs struct {
	Content string `json:"content" description:"Description of the todo list item"`
}

type reportArgs struct {
	Description string `json:"description" description:"The text of the report"`
}

type noArgs struct{}

// Assistant returns the multi-round catalog. docs may be nil, in which case
// the file tools are omitted.
func Assistant(st ItemStore, docs Documents) Catalog {
	tools := []tool.Tool{
		tool.NewTypedTool("addItem", "Add item to the todo list.", func(ctx context.Context, a contentArgs) (any, error) {
			return st.Add(ctx, a.Content)
		}),
		tool.NewTypedTool("setAsDone", "Set the list item as done.", func(ctx context.Context, a contentArgs) (any, error) {
			return st.MarkDone(ctx, a.Content)
		}),
		tool.NewTypedTool("removeItem", "Remove item from the list.", func(ctx context.Context, a contentArgs) (any, error) {
			return st.Remove(ctx, a.Content)
		}),
		tool.NewTypedTool("findItems", "Find all items in the list", func(ctx context.Context, _ noArgs) (any, error) {
			return st.ListJSON(ctx)
		}),
	}
	if docs != nil {
		tools = append(tools,
			tool.NewTypedTool("readFile", "Read file from filesystem", func(ctx context.Context, _ noArgs) (any, error) {
				return docs.Read(ctx)
			}),
			tool.NewTypedTool("writeFile", "Write report to filesystem", func(ctx context.Context, a reportArgs) (any, error) {
				return docs.WriteReport(ctx, a.Description)
			}),
		)
	}
	return Catalog{
		Name:        "assistant",
		Tools:       tools,
		Instruction: assistantInstruction,
		MaxRounds:   AssistantMaxRounds,
	}
}

const queryInstruction = `You maintain a todo list stored in a SQLite database by composing SQL statements.
Search for the items the user refers to, insert new items or update existing ones as the user asks.
The todo items live in the table created by this script:
{{.schema}}
Provide values for every NOT NULL column without a default. Always store text in lowercase.
To execute statements always use the tool named execute_query.`

type queryArgs struct {
	Query string `json:"query" description:"query string to execute"`
}

// Query returns the catalog that lets the model run raw SQL. schema is
// rendered into the instruction.
func Query(exec QueryExecutor, schema string) Catalog {
	return Catalog{
		Name: "query",
		Tools: []tool.Tool{
			tool.NewTypedTool("execute_query", "Execute the query to insert items to the list", func(ctx context.Context, a queryArgs) (any, error) {
				return exec.ExecuteQuery(ctx, a.Query)
			}),
		},
		Instruction: queryInstruction,
		Vars:        map[string]any{"schema": schema},
		MaxRounds:   1,
	}
}

// ByName returns the catalog for a variant name.
func ByName(name string, st ItemStore, exec QueryExecutor, docs Documents, schema string) (Catalog, error) {
	switch name {
	case "", "basic":
		return Basic(st), nil
	case "assistant":
		return Assistant(st, docs), nil
	case "query":
		if exec == nil {
			return Catalog{}, fmt.Errorf("todotools: query catalog needs a SQL store")
		}
		return Query(exec, schema), nil
	default:
		return Catalog{}, fmt.Errorf("todotools: unknown catalog %q", name)
	}
}
