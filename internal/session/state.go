package session

import (
	"time"

	"storefront/pkg/domain"
)

// Phase is the logical session state.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhasePending
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// State is a read-only snapshot of the session handed to consumers.
type State struct {
	Phase      Phase
	User       *domain.User
	Token      string
	Loading    bool
	Error      string
	IsVerified bool
	Wallet     *domain.Wallet
	// ExpiresAt comes from the token's exp claim; display only.
	ExpiresAt time.Time
}

// auth is the tagged variant behind State. User, Token and IsVerified are
// derived from it, so they can only change together.
type auth interface {
	phase() Phase
}

type anonymous struct{}

type pending struct {
	token     string
	user      *domain.User
	expiresAt time.Time
}

type authenticated struct {
	token     string
	user      domain.User
	wallet    *domain.Wallet
	expiresAt time.Time
}

func (anonymous) phase() Phase     { return PhaseAnonymous }
func (pending) phase() Phase       { return PhasePending }
func (authenticated) phase() Phase { return PhaseAuthenticated }

func tokenOf(a auth) string {
	switch v := a.(type) {
	case pending:
		return v.token
	case authenticated:
		return v.token
	default:
		return ""
	}
}

func snapshot(a auth, loading bool, errMsg string) State {
	st := State{Phase: a.phase(), Loading: loading, Error: errMsg}
	switch v := a.(type) {
	case pending:
		st.Token = v.token
		st.ExpiresAt = v.expiresAt
		if v.user != nil {
			u := *v.user
			st.User = &u
		}
	case authenticated:
		u := v.user
		st.Token = v.token
		st.User = &u
		st.IsVerified = true
		st.ExpiresAt = v.expiresAt
		if v.wallet != nil {
			w := *v.wallet
			st.Wallet = &w
		}
	}
	return st
}
