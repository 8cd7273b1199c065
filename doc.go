// Package sshsession provides a managed remote session over SSH: one
// authenticated transport per session, with command execution and SFTP file
// transfer on top of it.
//
// This package provides:
//   - A Session holding a single transport, with Run/Upload/Download and an
//     idempotent Close
//   - Password, private key, and certificate authentication
//   - Host key verification via known_hosts
//   - A caller-side Retry helper with exponential backoff (sessions never
//     retry internally)
//   - A SessionPool for keeping sessions open across sequential operations
//   - A Mirror for pushing directory trees over parallel sessions
//
// # Basic Usage
//
// Open a session, run a command, move some files:
//
//	config := sshsession.Config{
//		Host:     "example.com",
//		Port:     22,
//		User:     "deploy",
//		Password: "secret",
//	}
//
//	sess, err := sshsession.Open(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Close()
//
//	out, err := sess.Run(ctx, "uname -a")
//	err = sess.Upload(ctx, "/local/file.txt", "/remote/file.txt")
//	err = sess.Download(ctx, "/remote/file.txt", "/local/copy.txt")
//
// Run returns the remote command's stdout only; stderr and the exit status
// are not surfaced.
//
// A session is not safe for concurrent use, and a pool does not change that:
// Get with the same config returns the same pooled session. Use a pool to
// avoid reconnecting between sequential operations; for parallel remote
// operations open one independent session per goroutine.
//
//	pool := sshsession.NewSessionPool(5 * time.Minute)
//	defer pool.Close()
//
//	sess, err := pool.Get(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Release(config)
//
// # Pushing Trees
//
// Mirror pushes whole directories, creating remote parents as needed:
//
//	mirror, err := sshsession.NewMirror(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mirror.Close()
//
//	result, err := mirror.Push(ctx, "/local/dir", "/remote/dir", nil)
package sshsession
