// Package credentials holds the broker login triple and its local cache.
//
// A session token is base64("identity:secret:deployment"). The token is
// reversible by construction: anyone who can read the cache file can recover
// the broker password. The cache file is written with 0600 permissions but
// is not encrypted.
//
// Usage:
//
//	creds := credentials.Credentials{Identity: "ana", Secret: "pw", Deployment: "k1d2e3"}
//	cache := credentials.NewFileCache(path)
//	if err := cache.Save(creds); err != nil {
//	    return err
//	}
package credentials
