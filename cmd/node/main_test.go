package main

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/minichain/internal/blockchain"
	"github.com/yourusername/minichain/internal/crypto"
	"github.com/yourusername/minichain/internal/grpc"
	"github.com/yourusername/minichain/internal/storage"
)

func executeCommand(args ...string) (string, error) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	_, err := root.ExecuteC()
	return buf.String(), err
}

// run executes a command against dataDir with file logging disabled
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	return executeCommand(append(args, "--datadir", dataDir, "--logdir", "", "--loglevel", "warn")...)
}

func mustRun(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	output, err := run(t, dataDir, args...)
	require.NoError(t, err, output)
	return output
}

func TestRootCmd(t *testing.T) {
	output, err := executeCommand()
	assert.NoError(t, err)
	assert.Contains(t, output, "minichain keeps a proof-of-work chain")

	output, err = executeCommand("version", "--logdir", "")
	assert.NoError(t, err)
	assert.Equal(t, "minichain dev\n", output)

	_, err = executeCommand("version", "--logdir", "", "--loglevel", "invalid")
	assert.ErrorContains(t, err, `invalid log level "invalid"`)
}

func TestChainCommands(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "balance", "--address", "Alice")
	assert.ErrorContains(t, err, "run createchain first")

	output := mustRun(t, dir, "createchain", "--address", "Alice")
	assert.Contains(t, output, "paying 'Alice'")

	_, err = run(t, dir, "createchain", "--address", "Alice")
	assert.ErrorIs(t, err, blockchain.ErrChainExists)

	output = mustRun(t, dir, "balance", "--address", "Alice")
	assert.Equal(t, "Balance of 'Alice': 100\n", output)

	output = mustRun(t, dir, "send", "--from", "Alice", "--to", "Bob", "--amount", "30", "--miner", "Miner")
	assert.Contains(t, output, "Mined block #1")

	balances := map[string]string{"Alice": "70", "Bob": "30", "Miner": "100", "Eve": "0"}
	for owner, want := range balances {
		output = mustRun(t, dir, "balance", "--address", owner)
		assert.Equal(t, "Balance of '"+owner+"': "+want+"\n", output)
	}

	_, err = run(t, dir, "send", "--from", "Carol", "--to", "Bob", "--amount", "10", "--miner", "Miner")
	assert.ErrorContains(t, err, "not enough balance")

	_, err = run(t, dir, "send", "--from", "Alice", "--to", "Bob", "--amount", "10", "--mine=false")
	assert.ErrorContains(t, err, "use --rpc")

	_, err = run(t, dir, "send", "--from", "Alice", "--to", "Bob")
	assert.ErrorContains(t, err, "amount")

	output = mustRun(t, dir, "printchain")
	assert.Contains(t, output, "Block #1")
	assert.Contains(t, output, "Block #0")
	assert.Contains(t, output, "out: 30 to 'Bob'")
	assert.Less(t, strings.Index(output, "Block #1"), strings.Index(output, "Block #0"))

	output = mustRun(t, dir, "printchain", "--verbose")
	assert.Contains(t, output, "MerkleRoot")
}

func TestMineGeneratesMinerKey(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "createchain", "--address", "Alice")

	output := mustRun(t, dir, "mine")
	assert.Contains(t, output, "Mined block #1")

	addresses := strings.Fields(mustRun(t, dir, "listaddresses"))
	require.Len(t, addresses, 1)
	assert.True(t, crypto.IsAddress(addresses[0]))
	assert.Contains(t, output, addresses[0])

	output = mustRun(t, dir, "balance", "--address", addresses[0])
	assert.Equal(t, "Balance of '"+addresses[0]+"': 100\n", output)
}

func TestAddressCommands(t *testing.T) {
	dir := t.TempDir()

	assert.Empty(t, mustRun(t, dir, "listaddresses"))

	first := strings.TrimSpace(mustRun(t, dir, "newaddress"))
	second := strings.TrimSpace(mustRun(t, dir, "newaddress"))
	assert.True(t, crypto.IsAddress(first))
	assert.NotEqual(t, first, second)

	addresses := strings.Fields(mustRun(t, dir, "listaddresses"))
	assert.ElementsMatch(t, []string{first, second}, addresses)
}

// startNode serves a fresh in-memory chain paying Alice on a local port
func startNode(t *testing.T) string {
	t.Helper()

	store, err := storage.NewMemStorage()
	require.NoError(t, err)
	bc, err := blockchain.Create(store, "Alice", blockchain.Options{})
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := grpc.NewServer(bc, "Miner")
	go server.Serve(lis)
	t.Cleanup(func() {
		server.Stop()
		bc.Close()
	})
	return lis.Addr().String()
}

func TestRemoteCommands(t *testing.T) {
	addr := startNode(t)
	dir := t.TempDir()

	output := mustRun(t, dir, "info", "--rpc", addr)
	assert.Contains(t, output, "Height:       0")
	assert.Contains(t, output, "Mining:       false")

	output = mustRun(t, dir, "send", "--rpc", addr, "--from", "Alice", "--to", "Bob", "--amount", "40", "--mine=false")
	assert.Contains(t, output, "queued")
	assert.NotContains(t, output, "Mined")

	output = mustRun(t, dir, "info", "--rpc", addr)
	assert.Contains(t, output, "Mempool:      1")

	output = mustRun(t, dir, "mine", "--rpc", addr)
	assert.Contains(t, output, "Mined block #1")

	output = mustRun(t, dir, "balance", "--rpc", addr, "--address", "Bob")
	assert.Equal(t, "Balance of 'Bob': 40\n", output)
	output = mustRun(t, dir, "balance", "--rpc", addr, "--address", "Miner")
	assert.Equal(t, "Balance of 'Miner': 100\n", output)

	output = mustRun(t, dir, "info", "--rpc", addr, "--height", "1")
	assert.Contains(t, output, "Block #1")
	assert.Contains(t, output, "out: 40 to 'Bob'")

	_, err := run(t, dir, "info", "--rpc", addr, "--height", "9")
	assert.Error(t, err)
}
