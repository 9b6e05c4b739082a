/*
Package authsdk is a Go client for the wallet authentication service and the
wire types shared with its HTTP handlers.

# SDKClient vs Session

SDKClient covers the unauthenticated endpoints and starts sessions:

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.SignIn(ctx, address, 1, func(msg string) (string, error) {
		return wallet.PersonalSign(msg)
	})

SignIn requests a challenge, hands the exact message to the signer and
exchanges the signature for a token pair. A Session then refreshes its
access token on demand:

	info, err := session.Info(ctx)
	n, err := session.LogoutAll(ctx)

# Refresh Tokens

Refresh tokens are single use. Every refresh returns a new pair and the
presented token stops working, even when the refresh fails part way. A
Session serialises refreshes so concurrent callers never race on the same
token.

# Errors

Every non-2xx response becomes an *APIError. Compare with errors.Is against
the predefined values:

	if errors.Is(err, authsdk.ErrRateLimited) {
		var apiErr *authsdk.APIError
		errors.As(err, &apiErr)
		time.Sleep(apiErr.RetryAfter)
	}
*/
package authsdk
