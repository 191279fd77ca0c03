package models

// User is the identity carried by a signed-in session.
type User struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// PiMe is the response of the gateway's /v2/me endpoint.
type PiMe struct {
	UID         string `json:"uid"`
	Username    string `json:"username"`
	Credentials struct {
		Scopes []string `json:"scopes"`
	} `json:"credentials"`
}
