package sftp

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// sshAgentAuth returns an ssh.AuthMethod backed by a running ssh-agent, if
// SSH_AUTH_SOCK is set and reachable. Grounded on rclone's sftp backend,
// which prefers agent auth before falling back to password prompting.
func sshAgentAuth() (ssh.AuthMethod, bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, false
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers), true
}
