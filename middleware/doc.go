// Package middleware guards HTTP routes with bearer access tokens.
//
// [Require] and [RequireGin] reject requests without a valid token before
// the handler runs. [Optional] and [OptionalGin] let every request through
// and record whether it was authenticated. Either way the handler reads an
// [AuthState] and type-switches on it:
//
//	switch s := middleware.StateFromContext(r.Context()).(type) {
//	case middleware.Authenticated:
//		_ = s.Principal.AccountID
//	case middleware.Anonymous:
//	}
//
// Token verification is delegated to a [Validator]; this package never
// parses tokens or touches Redis.
package middleware
