package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"strings"
)

// tripcodeLen is the number of code characters appended to a name.
const tripcodeLen = 6

// Decorate resolves a claimed display name into the name that is
// actually registered. A claim of the form "name#secret" becomes
// "name!xxxxxx" where the code is derived from the secret portion, so
// a player can prove continuity of identity across reconnects without
// any account system. "!" is reserved for the decorated form and is
// stripped from the name portion, so a claim can never forge a code it
// does not hold the secret for.
func Decorate(claimed, serverSecret string) string {
	name, pass, found := strings.Cut(claimed, "#")
	name = strings.ReplaceAll(name, "!", "")
	if !found || pass == "" {
		return name
	}
	return name + "!" + Tripcode(pass, serverSecret)
}

// Tripcode derives the short code for a secret. The server secret is
// the HMAC key, so codes are not portable between deployments.
func Tripcode(pass, serverSecret string) string {
	mac := hmac.New(sha256.New, []byte(serverSecret))
	mac.Write([]byte(pass))
	code := base32.StdEncoding.EncodeToString(mac.Sum(nil))
	return strings.ToLower(code[:tripcodeLen])
}
