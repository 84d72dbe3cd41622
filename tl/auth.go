package tl

// Config is the (trimmed) reply to help.getConfig, consulted by
// initConnection (spec.md §4.7, "connect").
type Config struct {
	ThisDC       int
	ExpiresAfter int
}

// SentCode is the reply to auth.sendCode (spec.md §4.7).
type SentCode struct {
	PhoneCodeHash string
}

// Authorization is the reply to a successful sign-in/sign-up.
type Authorization struct {
	UserID int64
}

// SignUpRequired is returned by sign_in instead of an Authorization when the
// phone number has no account yet (spec.md §4.7).
type SignUpRequired struct {
	TermsOfService string
}

// Password is the reply to account.getPassword, carrying the SRP
// parameters check_password needs (spec.md §4.7 formula).
type Password struct {
	SRPID    int64
	SRPB     []byte
	Salt1    []byte
	Salt2    []byte
	G        int
	P        []byte
	HasAlgo  bool
}

// InputCheckPasswordSRP is what auth.checkPassword sends back.
type InputCheckPasswordSRP struct {
	SRPID int64
	A     []byte
	M1    []byte
}
