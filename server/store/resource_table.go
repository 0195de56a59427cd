package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
)

var resourceInterface = reflect.TypeOf((*models.Resource)(nil)).Elem()

type queryBuilder interface {
	ToSQL() (string, []interface{}, error)
}

type tableDescriptor struct {
	tableName        string
	idColName        string
	eTagColName      string
	createdAtColName string
	isMutable        bool
}

// ResourceTable implements the common create/read/update/list operations for a table holding one
// kind of models.Resource. Column names are derived from the model's db tags, which must all share
// a prefix (e.g. run_id, run_status, ...); the table name is the prefix plus "s".
type ResourceTable struct {
	logger.Log
	tableDescriptor
	db *DB
}

func NewResourceTable(db *DB, logFactory logger.LogFactory, resource models.Resource) *ResourceTable {
	desc := mustTableDescriptor(resource)
	return &ResourceTable{
		db:              db,
		tableDescriptor: desc,
		Log:             logFactory(fmt.Sprintf("%s_table", desc.tableName)),
	}
}

// MustDBModel verifies a resource model matches our conventions and contains suitable "db" tags.
//   - Model must contain one or more "db" tags
//   - All "db" tags must have a common field prefix e.g. artifact_ or run_
//   - There must be a prefix_id field e.g. artifact_id or run_id
//   - If the model is a models.MutableResource it must have a prefix_etag field e.g. run_etag
func MustDBModel(resource models.Resource) {
	mustTableDescriptor(resource)
}

// Dialect returns the goqu dialect (aka SQL Driver e.g. sqlite3, postgres etc.) in use.
func (d *ResourceTable) Dialect() goqu.DialectWrapper {
	return goqu.Dialect(d.db.DriverName())
}

func (d *ResourceTable) TableName() string {
	return d.tableName
}

// ReadByID reads an existing resource, looking it up by ResourceID.
// Returns gerror.ErrNotFound if the resource does not exist.
func (d *ResourceTable) ReadByID(ctx context.Context, txOrNil *Tx, id models.ResourceID, resource models.Resource) error {
	return d.ReadWhere(ctx, txOrNil, resource, goqu.Ex{d.idColName: id})
}

// ReadWhere reads an existing resource, looking it up using the supplied where clauses.
// Returns gerror.ErrNotFound if the resource does not exist.
func (d *ResourceTable) ReadWhere(ctx context.Context, txOrNil *Tx, resource models.Resource, where ...goqu.Expression) error {
	return d.ReadIn(ctx, txOrNil, resource, d.Dialect().From(d.tableName).Select(resource).Where(where...))
}

// ReadIn reads the first resource from the supplied select dataset.
// Returns gerror.ErrNotFound if the resource does not exist.
func (d *ResourceTable) ReadIn(ctx context.Context, txOrNil *Tx, resource models.Resource, ds *goqu.SelectDataset) error {
	return d.db.Read(txOrNil, func(db Reader) error {
		query, args, err := ds.Limit(1).ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.LogQuery(query, args)
		found, err := db.ScanStructContext(ctx, resource, query, args...)
		if err != nil {
			return MakeStandardDBError(err)
		}
		if !found {
			return gerror.NewErrNotFound(fmt.Sprintf("%s not found", strings.TrimSuffix(d.tableName, "s")))
		}
		return nil
	})
}

// Create a new resource. Mutable resources are given their initial ETag.
// Returns gerror.ErrAlreadyExists if a resource with matching unique properties already exists.
func (d *ResourceTable) Create(ctx context.Context, txOrNil *Tx, resource models.Resource) (err error) {
	if err := resource.Validate(); err != nil {
		return gerror.NewErrValidationFailed("Invalid resource").Wrap(err)
	}
	if mutable, ok := resource.(models.MutableResource); ok {
		eTag, err := makeETag(resource)
		if err != nil {
			return err
		}
		mutable.SetETag(eTag)
		defer func() {
			if err != nil {
				mutable.SetETag("")
			}
		}()
	}
	return d.db.Write(txOrNil, func(db Writer) error {
		_, err := d.logQueryDS(db.Insert(d.tableName).Rows(resource)).(*goqu.InsertDataset).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing create query: %w", MakeStandardDBError(err))
		}
		return nil
	})
}

// UpdateByID updates an existing resource, overwriting every column not tagged goqu:"skipupdate".
// Mutable resources are only updated if their ETag still matches the stored one (unless it is models.ETagAny),
// and receive a new ETag on success.
// Returns gerror.ErrOptimisticLockFailed if there is an optimistic lock mismatch.
func (d *ResourceTable) UpdateByID(ctx context.Context, txOrNil *Tx, resource models.Resource) (err error) {
	if err := resource.Validate(); err != nil {
		return gerror.NewErrValidationFailed("Invalid resource").Wrap(err)
	}
	where := []goqu.Expression{goqu.Ex{d.idColName: resource.GetID()}}
	mutable, isMutable := resource.(models.MutableResource)
	if isMutable {
		origETag := mutable.GetETag()
		eTag, err := makeETag(resource)
		if err != nil {
			return err
		}
		mutable.SetETag(eTag)
		if origETag != models.ETagAny {
			where = append(where, goqu.Ex{d.eTagColName: origETag})
		}
		defer func() {
			if err != nil {
				mutable.SetETag(origETag)
			}
		}()
	}
	return d.db.Write(txOrNil, func(db Writer) error {
		ds := db.Update(d.tableName).Set(resource).Where(where...)
		d.logQueryDS(ds)
		res, err := ds.Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing update query: %w", MakeStandardDBError(err))
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %w", MakeStandardDBError(err))
		}
		if rowsAffected == 0 {
			if !isMutable {
				return gerror.NewErrNotFound(fmt.Sprintf("%s does not exist", resource.GetID()))
			}
			return gerror.NewErrOptimisticLockFailed("ETag does not match")
		}
		return nil
	})
}

// ListIn lists resources in the specified select dataset, newest first, with offset pagination.
// resources must be a pointer to a slice of the resource type e.g. &[]*models.Run
// Returns true if there are more results after this page.
func (d *ResourceTable) ListIn(ctx context.Context, txOrNil *Tx, resources interface{}, pagination models.Pagination, ds *goqu.SelectDataset) (bool, error) {
	sliceV := d.mustResourceSlice(resources)
	ds = ds.
		Order(goqu.I(d.createdAtColName).Desc()).
		OrderAppend(goqu.I(d.idColName).Desc()).
		Limit(uint(pagination.Limit + 1)).
		Offset(uint(pagination.Offset))
	if err := d.scanAll(ctx, txOrNil, resources, ds); err != nil {
		return false, err
	}
	if sliceV.Len() > pagination.Limit {
		sliceV.Set(sliceV.Slice(0, pagination.Limit))
		return true, nil
	}
	return false, nil
}

// ListAllIn lists every resource in the specified select dataset. Unless the dataset is already
// ordered, resources are returned oldest first.
func (d *ResourceTable) ListAllIn(ctx context.Context, txOrNil *Tx, resources interface{}, ds *goqu.SelectDataset) error {
	d.mustResourceSlice(resources)
	if ds.GetClauses().Order() == nil {
		ds = ds.Order(goqu.I(d.createdAtColName).Asc()).OrderAppend(goqu.I(d.idColName).Asc())
	}
	return d.scanAll(ctx, txOrNil, resources, ds)
}

func (d *ResourceTable) scanAll(ctx context.Context, txOrNil *Tx, resources interface{}, ds *goqu.SelectDataset) error {
	return d.db.Read(txOrNil, func(db Reader) error {
		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.LogQuery(query, args)
		if err := db.ScanStructsContext(ctx, resources, query, args...); err != nil {
			return MakeStandardDBError(err)
		}
		return nil
	})
}

func (d *ResourceTable) mustResourceSlice(resources interface{}) reflect.Value {
	slicePtr := reflect.TypeOf(resources)
	if slicePtr.Kind() != reflect.Ptr {
		d.Panicf("expected pointer to slice, found: %T", resources)
	}
	sliceT := slicePtr.Elem()
	if sliceT.Kind() != reflect.Slice {
		d.Panicf("expected slice, found: %T", resources)
	}
	if !sliceT.Elem().Implements(resourceInterface) {
		d.Panicf("expected slice of resource, found: %s", sliceT.Elem())
	}
	return reflect.ValueOf(resources).Elem()
}

func makeETag(resource models.Resource) (models.ETag, error) {
	hash, err := hashstructure.Hash(resource, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("error calculating resource hash: %w", err)
	}
	return models.ETag(fmt.Sprintf("\"%x\"", hash)), nil
}

// MakeStandardDBError converts driver specific constraint errors into gerror errors.
func MakeStandardDBError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return gerror.NewErrAlreadyExists("Resource already exists").Wrap(sqliteErr)
		}
		if sqliteErr.Code == sqlite3.ErrNotFound {
			return gerror.NewErrNotFound("Resource not found").Wrap(sqliteErr)
		}
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return gerror.NewErrAlreadyExists("Resource already exists").Wrap(pgErr)
		case "P0002": // no_data_found
			return gerror.NewErrNotFound("Resource not found").Wrap(pgErr)
		}
	}
	return err
}

// logQueryDS generates and logs the raw SQL of a query to the configured logger, returning the query.
func (d *ResourceTable) logQueryDS(ds queryBuilder) queryBuilder {
	query, args, err := ds.ToSQL()
	if err != nil {
		d.Errorf("Error generating query: %v", err)
		return ds
	}
	d.LogQuery(query, args)
	return ds
}

// LogQuery logs a SQL query and args to the configured logger.
func (d *ResourceTable) LogQuery(query string, args []interface{}) {
	d.WithFields(logger.Fields{"query": query, "args": args}).Trace()
}

func mustTableDescriptor(resource models.Resource) tableDescriptor {
	fieldMap := make(map[string]struct{})
	collectDBTags(reflect.TypeOf(resource), fieldMap)

	fieldPrefix := "" // e.g. artifact
	for val := range fieldMap {
		candidate := strings.TrimSuffix(val, idColSuffix)
		if fieldPrefix == "" {
			fieldPrefix = candidate
			continue
		}
		k := 0
		for ; k < min(len(candidate), len(fieldPrefix)); k++ {
			if candidate[k] != fieldPrefix[k] {
				k--
				break
			}
		}
		if k <= 0 {
			panic("All db fields must be prefixed with the table name")
		}
		fieldPrefix = candidate[:k]
	}
	fieldPrefix = strings.TrimSuffix(fieldPrefix, "_")
	if fieldPrefix == "" {
		panic("Unable to determine db field prefix")
	}

	required := []string{fieldPrefix + idColSuffix, fieldPrefix + createdAtColSuffix}
	_, isMutable := resource.(models.MutableResource)
	if isMutable {
		required = append(required, fieldPrefix+eTagColSuffix)
	}
	tableName := fieldPrefix + "s"
	for _, field := range required {
		if _, ok := fieldMap[field]; !ok {
			panic(fmt.Sprintf("expected %q model to contain a field with a \"db\" tag matching %q", tableName, field))
		}
	}

	return tableDescriptor{
		tableName:        tableName,
		idColName:        fieldPrefix + idColSuffix,
		eTagColName:      fieldPrefix + eTagColSuffix,
		createdAtColName: fieldPrefix + createdAtColSuffix,
		isMutable:        isMutable,
	}
}

// collectDBTags collects the db tag values of all fields in the flattened t.
func collectDBTags(t reflect.Type, fieldMap map[string]struct{}) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			collectDBTags(field.Type, fieldMap)
		} else if val, ok := field.Tag.Lookup(dbTagName); ok {
			fieldMap[val] = struct{}{}
		}
	}
}

const (
	dbTagName          = "db"
	idColSuffix        = "_id"
	eTagColSuffix      = "_etag"
	createdAtColSuffix = "_created_at"
)

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
