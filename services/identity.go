package services

// Identity is the resolved requester: an authenticated account or a
// best-effort client address. Anonymous identity is an approximation
// (shared NATs, VPNs) that the free tier accepts.
type Identity struct {
	UserID    string
	Email     string
	SessionID string
	IPAddress string
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

func AnonymousIdentity(ipAddress string) Identity {
	return Identity{IPAddress: ipAddress}
}

func AuthenticatedIdentity(userID, email, sessionID, ipAddress string) Identity {
	return Identity{
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		IPAddress: ipAddress,
	}
}
