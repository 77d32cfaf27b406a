package panel

import "sort"

// Layout is the computed screen layout for a set of panels and terminal
// dimensions.
type Layout struct {
	// TopPanels are the visible top panels, ordered edge toward content
	// (highest z first).
	TopPanels []Panel `json:"top_panels"`
	// BottomPanels are the visible bottom panels, ordered edge toward
	// content (highest z first).
	BottomPanels []Panel `json:"bottom_panels"`
	// HiddenPanels are ids of panels hidden due to insufficient space.
	HiddenPanels []string `json:"hidden_panels"`
	// ScrollRegionTop is the first PTY row (1-indexed, for DECSTBM).
	ScrollRegionTop uint16 `json:"scroll_region_top"`
	// ScrollRegionBottom is the last PTY row (1-indexed, for DECSTBM).
	ScrollRegionBottom uint16 `json:"scroll_region_bottom"`
	// PtyRows is the number of rows left for the PTY. May be zero.
	PtyRows uint16 `json:"pty_rows"`
	// PtyCols is the number of columns (unchanged from the terminal).
	PtyCols uint16 `json:"pty_cols"`
}

// ComputeLayout allocates terminal rows to panels greedily by z-index,
// highest first, across both positions. Panels that do not fit in the
// remaining rows are hidden. Panels may consume every row, leaving zero for
// the PTY.
func ComputeLayout(panels []Panel, terminalRows, terminalCols uint16) Layout {
	all := make([]Panel, len(panels))
	copy(all, panels)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Z > all[j].Z })

	remaining := terminalRows
	visibleTop := []Panel{}
	visibleBottom := []Panel{}
	hidden := []string{}

	for _, p := range all {
		if remaining == 0 || p.Height > remaining {
			hidden = append(hidden, p.ID)
			continue
		}
		remaining -= p.Height
		p.Visible = true
		if p.Position == PositionTop {
			visibleTop = append(visibleTop, p)
		} else {
			visibleBottom = append(visibleBottom, p)
		}
	}

	// Edge first within each group: highest z first.
	sort.SliceStable(visibleTop, func(i, j int) bool { return visibleTop[i].Z > visibleTop[j].Z })
	sort.SliceStable(visibleBottom, func(i, j int) bool { return visibleBottom[i].Z > visibleBottom[j].Z })

	var topHeight, bottomHeight uint16
	for _, p := range visibleTop {
		topHeight += p.Height
	}
	for _, p := range visibleBottom {
		bottomHeight += p.Height
	}

	return Layout{
		TopPanels:          visibleTop,
		BottomPanels:       visibleBottom,
		HiddenPanels:       hidden,
		ScrollRegionTop:    topHeight + 1,
		ScrollRegionBottom: terminalRows - bottomHeight,
		PtyRows:            terminalRows - topHeight - bottomHeight,
		PtyCols:            terminalCols,
	}
}
