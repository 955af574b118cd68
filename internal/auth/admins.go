package auth

import "strings"

// Admins is the fixed allow-list of usernames with admin rights.
type Admins map[string]bool

// ParseAdmins reads a comma-separated username list.
func ParseAdmins(csv string) Admins {
	admins := Admins{}
	for _, u := range strings.Split(csv, ",") {
		if u = strings.TrimSpace(u); u != "" {
			admins[u] = true
		}
	}
	return admins
}

func (a Admins) Contains(username string) bool {
	return a[username]
}

// reservedUsernames collide with static routes under /orders.
var reservedUsernames = map[string]bool{
	"quote": true,
}

// Reserved reports whether username is taken by a route and cannot be
// registered.
func Reserved(username string) bool {
	return reservedUsernames[strings.ToLower(username)]
}
