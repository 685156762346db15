package reconcile

import (
	"context"
	"sort"
)

// ReconcileAll builds a fresh snapshot and returns one result per entity, sorted by key.
func ReconcileAll(ctx context.Context, spec *Spec) ([]Result, error) {
	snap, err := BuildSnapshot(ctx, spec)
	if err != nil {
		return nil, err
	}
	return resultsFromSnapshot(snap, spec.Adapter), nil
}

func resultsFromSnapshot(snap *Snapshot, adapter Adapter) []Result {
	union := buildUnion(snap.Internal, snap.Channel)

	results := make([]Result, 0, len(union))
	for key := range union {
		results = append(results, buildResult(key, snap, adapter))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return results
}

// buildUnion creates a union of the keys of both indices.
func buildUnion(internal map[string]InternalItem, channel map[string]ChannelItem) map[string]struct{} {
	union := make(map[string]struct{}, len(internal))
	for key := range internal {
		union[key] = struct{}{}
	}
	for key := range channel {
		union[key] = struct{}{}
	}
	return union
}

// buildResult creates a Result for a single key.
func buildResult(key string, snap *Snapshot, adapter Adapter) Result {
	internal, internalPresent := snap.Internal[key]
	channel, channelPresent := snap.Channel[key]

	result := Result{
		Key:             key,
		InternalPresent: internalPresent,
		ChannelPresent:  channelPresent,
		Mismatch:        []string{},
	}

	if err, failed := snap.PollErrors[key]; failed {
		result.PollError = err.Error()
	}

	if internalPresent {
		result.Name = adapter.ResolveName(internal)
		var ch ChannelItem
		if channelPresent {
			ch = channel
		}
		result.Metadata = adapter.GetMetadata(internal, ch)
	}

	if internalPresent && channelPresent {
		result.Mismatch = adapter.CompareFields(internal, channel)
	}

	return result
}
