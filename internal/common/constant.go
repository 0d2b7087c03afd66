package common

// SessionCookieName is the cookie carrying the session correlation token.
const SessionCookieName = "sessionId"

// SessionCookieMaxAge is the cookie lifetime in seconds (one year).
const SessionCookieMaxAge = 31536000
