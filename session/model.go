package session

// Realm is an independent authentication domain. Member and panel sessions
// are never interchangeable.
type Realm string

const (
	RealmMember Realm = "member"
	RealmPanel  Realm = "panel"
)

// Snapshot is the authenticated-principal state minted at login time. ID and
// Currency are populated for the member realm only.
type Snapshot struct {
	Realm     Realm  `json:"realm"`
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	AuthLevel int    `json:"auth_level"`
	Currency  string `json:"currency,omitempty"`
	StartedAt int64  `json:"started_at"`
}

// Redirect is an explicit redirect instruction returned by session
// operations. Callers must honor it instead of continuing the request; the
// core never terminates control flow on its own.
type Redirect struct {
	Location string
}

// Redirecting reports whether a redirect was requested.
func (r Redirect) Redirecting() bool {
	return r.Location != ""
}

// record is the cache-resident session blob. A session exists implicitly
// (empty) at first contact and is only persisted once something is set.
type record struct {
	Member       *Snapshot `json:"member,omitempty"`
	Panel        *Snapshot `json:"panel,omitempty"`
	Unlocked     bool      `json:"unlocked,omitempty"`
	DarkMode     bool      `json:"dark_mode,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	FormAttempts int       `json:"form_attempts,omitempty"`
}
