package ledger

import "time"

// SeedWallet is a test helper that registers a wallet id when using the
// in-memory store.
func SeedWallet(s Store, walletID string) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.wallets[walletID] = struct{}{}
	}
}

// RewindSnapshots is a test helper that backdates the snapshot stamp of the
// wallet's warm rows so archive cutoffs can be exercised without waiting.
func RewindSnapshots(s Store, walletID string, to time.Time) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		for i := range mem.warm {
			if mem.warm[i].WalletID == walletID {
				mem.warm[i].SnapshotAt = to
			}
		}
	}
}

// ActiveRows returns copies of the wallet's active-tier rows from the
// in-memory store.
func ActiveRows(s Store, walletID string) []Transaction {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return nil
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	var rows []Transaction
	for _, row := range mem.active {
		if row.WalletID == walletID {
			rows = append(rows, row)
		}
	}
	return rows
}

// WarmRows returns copies of the wallet's warm-tier rows from the in-memory
// store.
func WarmRows(s Store, walletID string) []Snapshot {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return nil
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	var rows []Snapshot
	for _, row := range mem.warm {
		if row.WalletID == walletID {
			rows = append(rows, row)
		}
	}
	return rows
}

// ColdRows returns copies of the wallet's cold-tier rows from the in-memory
// store.
func ColdRows(s Store, walletID string) []Snapshot {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return nil
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	var rows []Snapshot
	for _, row := range mem.cold {
		if row.WalletID == walletID {
			rows = append(rows, row)
		}
	}
	return rows
}
