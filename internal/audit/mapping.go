package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and chi route pattern
// (e.g. POST /v1/admin/users/{userId}/require-otp).
// Resource is the first collection segment after the version and optional admin prefix, singularised.
// Action is the trailing verb segment for POST routes, otherwise get/list/update/delete by method.
func ParseRoute(method, pattern string) ActionResource {
	var segs []string
	for _, s := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) > 0 && isVersion(segs[0]) {
		segs = segs[1:]
	}
	if len(segs) > 0 && segs[0] == "admin" {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}

	resource := singular(segs[0])
	last := segs[len(segs)-1]
	lastIsParam := strings.HasPrefix(last, "{")

	var action string
	switch strings.ToUpper(method) {
	case "GET":
		if lastIsParam {
			action = "get"
		} else if len(segs) == 1 {
			action = "list"
		} else {
			action = strings.ReplaceAll(last, "-", "_")
		}
	case "PUT", "PATCH":
		action = "update"
	case "DELETE":
		action = "delete"
	default:
		if lastIsParam || len(segs) == 1 {
			action = "create"
		} else {
			action = strings.ReplaceAll(last, "-", "_")
		}
	}
	return ActionResource{Action: action, Resource: resource}
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	default:
		return s
	}
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
