// Package tokensource acquires, caches and refreshes OAuth2 bearer tokens for an
// Azure AD v1 style authority using the Authorization Code Grant.
//
// The authority deviates from a plain OAuth2 setup in two ways:
//   - Both endpoints carry a "resource" query parameter naming the target API (the audience)
//   - Client credentials travel in the form body rather than in Basic auth
//
// # Token Lifecycle
//
// A Provider starts Uninitialized. EnsureInitialized presents the grant URL,
// waits for the user to paste the authorization code and exchanges it:
//
//	auth, err := tokensource.NewAuthorizer(creds, nil)
//	provider := tokensource.NewProvider(auth, tokensource.WithPromptTimeout(2*time.Minute))
//	if err := provider.EnsureInitialized(ctx); err != nil {
//		// *AuthFlowError
//	}
//
// Refresh trades the refresh token for a new pair. A rejected refresh leaves the
// Provider Expired; only a new interactive flow recovers from that.
//
// Only one interactive flow and one refresh run at a time per Provider. Callers
// joining a running flow share its outcome; the flow itself runs under the
// context of the caller that started it.
//
// # Transport
//
// Transport wires a Provider into an http.Client:
//
//	client := &http.Client{Transport: &tokensource.Transport{Provider: provider}}
//
// Tokens are held in memory only and are lost when the process exits.
package tokensource
