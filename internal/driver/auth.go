package driver

import (
	"strings"
)

// Authorizer decides who may issue chair commands. It is only used from the loop.
type Authorizer interface {
	IsChair(nick string) bool
	// Verify asks for fresh proof that nick is a chair. A no-op for static lists.
	Verify(nick string)
	// VerifyAll re-verifies every configured chair.
	VerifyAll()
	// HandleNotice consumes a NOTICE. ok reports whether it changed nick's standing.
	HandleNotice(from, text string) (nick string, granted bool, ok bool)
}

// StaticAuthorizer trusts a configured list of nicks. For networks without services.
type StaticAuthorizer struct {
	chairs map[string]bool
}

// NewStaticAuthorizer creates an authorizer over chairs.
func NewStaticAuthorizer(chairs []string) *StaticAuthorizer {
	a := &StaticAuthorizer{chairs: make(map[string]bool, len(chairs))}
	for _, nick := range chairs {
		a.chairs[fold(nick)] = true
	}
	return a
}

func (a *StaticAuthorizer) IsChair(nick string) bool { return a.chairs[fold(nick)] }
func (a *StaticAuthorizer) Verify(string)            {}
func (a *StaticAuthorizer) VerifyAll()               {}
func (a *StaticAuthorizer) HandleNotice(_, _ string) (string, bool, bool) {
	return "", false, false
}

// NickServAuthorizer grants chair rights to configured nicks once NickServ confirms they
// are identified. It sends "ACC <nick>" and expects "<nick> ACC <status>" back; status 3
// means identified to the account owning that nick.
type NickServAuthorizer struct {
	send     func(target, text string) error
	service  string
	chairs   map[string]string // folded -> configured spelling
	verified map[string]bool
}

// NewNickServAuthorizer creates an authorizer that talks to service through send.
func NewNickServAuthorizer(send func(target, text string) error, service string, chairs []string) *NickServAuthorizer {
	if service == "" {
		service = "NickServ"
	}
	a := &NickServAuthorizer{
		send:     send,
		service:  service,
		chairs:   make(map[string]string, len(chairs)),
		verified: make(map[string]bool),
	}
	for _, nick := range chairs {
		a.chairs[fold(nick)] = nick
	}
	return a
}

func (a *NickServAuthorizer) IsChair(nick string) bool {
	return a.verified[fold(nick)]
}

func (a *NickServAuthorizer) Verify(nick string) {
	configured, ok := a.chairs[fold(nick)]
	if !ok {
		return
	}
	if err := a.send(a.service, "ACC "+configured); err != nil {
		logf("failed to ask %s about %s: %v", a.service, configured, err)
	}
}

func (a *NickServAuthorizer) VerifyAll() {
	for _, nick := range a.chairs {
		a.Verify(nick)
	}
}

// HandleNotice parses both "nick ACC 3" and the Atheme form "nick -> account ACC 3".
func (a *NickServAuthorizer) HandleNotice(from, text string) (string, bool, bool) {
	if !strings.EqualFold(from, a.service) {
		return "", false, false
	}
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return "", false, false
	}
	nick := fields[0]
	if _, ok := a.chairs[fold(nick)]; !ok {
		return "", false, false
	}

	for i := 1; i < len(fields)-1; i++ {
		if fields[i] != "ACC" {
			continue
		}
		granted := fields[i+1] == "3"
		key := fold(nick)
		changed := a.verified[key] != granted
		if granted {
			a.verified[key] = true
		} else {
			delete(a.verified, key)
		}
		return nick, granted, changed
	}
	return "", false, false
}

func fold(nick string) string {
	return strings.ToLower(strings.TrimSpace(nick))
}
