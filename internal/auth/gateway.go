package auth

import (
	"errors"
	"strings"
)

// ErrNoToken means the request carried no Authorization header.
var ErrNoToken = errors.New("auth: no bearer token")

// Stage is where a request stopped in the gateway.
type Stage int

const (
	StageUnauthenticated Stage = iota
	StageTokenPresent
	StageTokenVerified
	StageIdentityAttached
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageUnauthenticated:
		return "unauthenticated"
	case StageTokenPresent:
		return "token_present"
	case StageTokenVerified:
		return "token_verified"
	case StageIdentityAttached:
		return "identity_attached"
	case StageRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Verifier checks a raw token and returns its identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// Gateway turns an Authorization header into an Identity. It only
// interprets the token; it never touches the datastore.
type Gateway struct {
	verifier Verifier
}

func NewGateway(verifier Verifier) *Gateway {
	return &Gateway{verifier: verifier}
}

// Result is the outcome of one Authenticate call.
type Result struct {
	Stage    Stage
	Identity *Identity
	Err      error
}

// Authenticate walks Unauthenticated → TokenPresent → TokenVerified. It stops
// at Unauthenticated with ErrNoToken when the header is empty and at Rejected
// when the header or token is bad. Attaching the identity to the request is
// left to the caller.
func (g *Gateway) Authenticate(header string) Result {
	token, present, err := ExtractBearer(header)
	if err != nil {
		return Result{Stage: StageRejected, Err: err}
	}
	if !present {
		return Result{Stage: StageUnauthenticated, Err: ErrNoToken}
	}

	id, err := g.verifier.Verify(token)
	if err != nil {
		return Result{Stage: StageRejected, Err: err}
	}
	return Result{Stage: StageTokenVerified, Identity: &id}
}

// ExtractBearer pulls the token out of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func ExtractBearer(header string) (token string, present bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, nil
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true, ErrTokenMalformed
	}
	token = strings.TrimSpace(rest)
	if token == "" {
		return "", true, ErrTokenMalformed
	}
	return token, true, nil
}
