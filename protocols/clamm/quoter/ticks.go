package quoter

import (
	"sort"

	"github.com/defistate/clamm-go/protocols/clamm"
)

// nextInitializedTick searches a slice of initialized ticks sorted by index. With lte it returns
// the largest index <= tick, otherwise the smallest index > tick. The search is not limited to one
// bitmap word, so a quote takes one step per initialized tick crossed.
func nextInitializedTick(ticks []clamm.TickInfo, tick int64, lte bool) (next int64, liquidityNetIndex int, found bool) {
	if lte {
		i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Index > tick })
		if i == 0 {
			return 0, -1, false
		}
		return ticks[i-1].Index, i - 1, true
	}

	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Index > tick })
	if i >= len(ticks) {
		return 0, -1, false
	}
	return ticks[i].Index, i, true
}
