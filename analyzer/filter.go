package analyzer

import "mediaanalyzer/services"

const locationFileSystem = "FileSystem"

// FilterItems drops box sets, items not backed by a file and repeated paths.
// Items are visited in fetch order so the first occurrence of a path wins.
func FilterItems(items []services.CatalogItem) []services.CatalogItem {
	kept := make([]services.CatalogItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Type == "BoxSet" {
			continue
		}
		if item.LocationType != locationFileSystem {
			continue
		}
		path := orUnknown(item.Path)
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		kept = append(kept, item)
	}
	return kept
}
