// Package credctl is the operator tool for mirrored credentials. It reads
// an encrypted credential from the configured credential store and decrypts
// it with the process cipher key.
//
// Commands:
//
//	decrypt <account_id>   print the plaintext credential of one account
//	keygen                 print a fresh hex-encoded 32-byte cipher key
//	help                   print usage
package credctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/cryptox"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/credentials"
)

var ErrUsage = errors.New("usage: credctl [-c config.json] decrypt <account_id> | keygen | help")

var accountIDPattern = regexp.MustCompile(`^[1-9][0-9]{9}$`)

// test seams
var (
	readPassword = term.ReadPassword
	lookupEnv    = os.LookupEnv
	stdinFd      = func() int { return int(os.Stdin.Fd()) }
)

// StoreOpener opens the credential store on demand. The returned func
// releases it.
type StoreOpener func(ctx context.Context) (credentials.Repository, func() error, error)

type App struct {
	open StoreOpener
	out  io.Writer
	err  io.Writer
}

func NewApp(open StoreOpener, out, errOut io.Writer) *App {
	return &App{open: open, out: out, err: errOut}
}

// Run executes one command given by args (flags already removed).
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "decrypt":
		if len(args) != 2 {
			return ErrUsage
		}
		return a.decrypt(ctx, args[1])
	case "keygen":
		key, err := common.MakeRandHexString(cryptox.KeySize)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, key)
		return err
	case "help", "-h", "--help":
		_, err := fmt.Fprintln(a.out, ErrUsage.Error())
		return err
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}
}

func (a *App) decrypt(ctx context.Context, accountID string) error {
	if !accountIDPattern.MatchString(accountID) {
		return fmt.Errorf("invalid account id %q", accountID)
	}

	key, err := a.cipherKey()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	store, closeStore, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			fmt.Fprintf(a.err, "close credential store: %v\n", err)
		}
	}()

	payload, err := store.Get(ctx, accountID)
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("no credential stored for account %s", accountID)
	}
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}

	plain, err := cryptox.DecryptCredential(payload, key)
	if err != nil {
		return fmt.Errorf("decrypt credential: %w", err)
	}
	_, err = fmt.Fprintln(a.out, plain)
	return err
}

// cipherKey takes ENCRYPTION_KEY from the environment or prompts for it
// without echo.
func (a *App) cipherKey() ([]byte, error) {
	if v, ok := lookupEnv("ENCRYPTION_KEY"); ok && strings.TrimSpace(v) != "" {
		return cryptox.ParseKey(v)
	}

	fmt.Fprint(a.err, "Encryption key (hex): ")
	b, err := readPassword(stdinFd())
	fmt.Fprintln(a.err)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	defer common.WipeByteArray(b)
	return cryptox.ParseKey(string(b))
}
