// Package pagination walks the paginated people listing of the catalog API.
//
// The listing reports the total number of items in its "count" field and
// serves a fixed number of items per page. Open fetches the first page once,
// derives the page count from it and returns a Cursor that yields one page
// of raw records per call to Next, in page order:
//
//	cur, err := pagination.Open(ctx, catalogClient, pagination.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	for {
//		page, err := cur.Next(ctx)
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		handle(page)
//	}
//
// The count is read once; it is not re-validated while the cursor advances.
// A cursor is forward-only and cannot be restarted once exhausted.
package pagination
