/*
Package security encrypts account credentials at rest using AES-256-GCM.

A CredentialsManager holds a 32-byte key, typically derived per-system via
DeriveKeyFromSystemID so every system's accounts are encrypted under a
distinct, reproducible key without storing the key anywhere:

	key := security.DeriveKeyFromSystemID(system.ID)
	cm, err := security.NewCredentialsManager(key)

	ciphertext, err := cm.EncryptCredentials(plaintextCreds)
	plaintext, err := cm.DecryptCredentials(ciphertext)

The nonce is generated per call and prepended to the ciphertext, so
EncryptCredentials/DecryptCredentials are the only two operations callers
need.
*/
package security
