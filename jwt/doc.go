// Package jwt issues and verifies the ID tokens the reference identity
// provider returns when a sign-in completes. The claims mirror the attribute
// names the engine reads roles from.
package jwt
