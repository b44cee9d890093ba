// Package password hashes and verifies account passwords.
//
// New hashes use Argon2id encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Chain] also verifies bcrypt digests so imported accounts keep working; such
// hashes report NeedsUpgrade and are re-hashed by the caller after the next
// successful login.
//
// Password policy (length limits) is enforced by the credential service, not
// here. Plaintext passwords are never stored or logged.
package password
