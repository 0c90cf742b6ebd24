package throttle

import "net/http"

// Action is the semantic name of an operation, used to select limits and to
// namespace counter keys.
type Action string

const (
	// ActionFind covers reads (GET, HEAD).
	ActionFind Action = "find"

	// ActionCreate covers resource creation (POST).
	ActionCreate Action = "create"

	// ActionUpdate covers modification (PUT).
	ActionUpdate Action = "update"

	// ActionRemove covers deletion (DELETE).
	ActionRemove Action = "remove"

	// ActionWildcard matches any action in a limit policy.
	ActionWildcard Action = "*"
)

var methodActions = map[string]Action{
	http.MethodGet:    ActionFind,
	http.MethodPost:   ActionCreate,
	http.MethodPut:    ActionUpdate,
	http.MethodDelete: ActionRemove,
	http.MethodHead:   ActionFind,
}

// ActionForMethod maps an HTTP method to its default action. The second
// return is false for methods with no mapping.
func ActionForMethod(method string) (Action, bool) {
	a, ok := methodActions[method]
	return a, ok
}

// ClassifyAction resolves the action for a request: an explicit override
// takes precedence over the method mapping.
func ClassifyAction(method string, override Action) (Action, bool) {
	if override != "" {
		return override, true
	}
	return ActionForMethod(method)
}
