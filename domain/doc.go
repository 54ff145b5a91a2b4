// Package domain provides a single-valued, optionally encrypted attribute
// store on top of an eventually consistent key-value backend.
//
// A domain contains named items; each item holds attributes. The raw backend
// allows several values per attribute and may serve stale reads. A [Store]
// layered on it guarantees:
//
//   - Replace, not append: SetProperty leaves exactly one value per key
//   - Read-after-write: every write is confirmed visible before returning
//   - Absence is not an error: missing domains, items, and keys read as ok == false
//   - Per-value encryption with an instance-scoped [cipher.KeyPair]
//
// # Usage
//
//	b := dynamo.New(dynamodb.NewFromConfig(awsCfg), dynamo.DefaultConfig())
//	s := domain.NewWithKeys(b, domain.DefaultConfig(), keys)
//
//	if err := s.Create(ctx, "settings"); err != nil {
//	    return err
//	}
//	if err := s.SetEncryptedProperty(ctx, "settings", "prod", "db_password", pw); err != nil {
//	    return err
//	}
//	pw, ok, err := s.GetEncryptedProperty(ctx, "settings", "prod", "db_password")
//
// # Configuration
//
// [DefaultConfig] polls every 250ms for up to 40 attempts when confirming an
// item or property write, and up to 240 attempts (60s) for Create and Destroy,
// which wait on table provisioning. Backends with consistent reads usually
// confirm item writes on the first attempt.
//
// # Errors
//
//   - [ErrBackendUnavailable] - the backend call failed; never retried here
//   - [ErrConsistencyTimeout] - write issued, visibility not confirmed in time
//   - [ErrLoadPartiallyApplied] - matched by [*LoadError] from LoadDomain
//   - [ErrNoPublicKey] / [ErrNoPrivateKey] - key material missing
//   - [ErrDecryptionFailed] - stored value is not ciphertext for this key
package domain
